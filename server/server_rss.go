package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// updateRSS polls every configured feed and adds the links of items newer
// than the last seen one. The first poll of a feed only records where it
// stands.
func (s *Server) updateRSS() int {
	s.rssMu.Lock()
	defer s.rssMu.Unlock()

	fp := gofeed.NewParser()
	fp.Client = &http.Client{
		Timeout: 10 * time.Second,
	}
	added := 0
	for _, rss := range strings.Split(s.config.RssURL, "\n") {
		rss = strings.TrimSpace(rss)
		if !strings.HasPrefix(rss, "http://") && !strings.HasPrefix(rss, "https://") {
			if rss != "" {
				log().Warnf("parse feed addr Invalid %s", rss)
			}
			continue
		}

		feed, err := fp.ParseURL(rss)
		if err != nil {
			log().Warnf("parse feed err %s", err)
			continue
		}
		if len(feed.Items) == 0 {
			continue
		}
		log().Debugf("retrived feed %s from %s", feed.Title, rss)

		newest := itemKey(feed.Items[0])
		last, ok := s.rssCache[rss]
		s.rssCache[rss] = newest
		if !ok {
			log().Debugf("retrive %d items, first record", len(feed.Items))
			continue
		}
		if last == newest {
			continue
		}

		var newitems []*gofeed.Item
		for _, i := range feed.Items {
			if itemKey(i) == last {
				break
			}
			newitems = append(newitems, i)
		}
		log().Infof("feed updated %d new items", len(newitems))
		// oldest first, the feed lists newest first
		for i := len(newitems) - 1; i >= 0; i-- {
			if s.addFeedItem(newitems[i]) {
				added++
			}
		}
	}
	return added
}

func (s *Server) addFeedItem(item *gofeed.Item) bool {
	link := itemLink(item)
	if link == "" {
		log().Debugf("feed item %q has no usable link", item.Title)
		return false
	}
	gid, err := s.core().AddURI([]string{link}, nil, -1)
	if err != nil {
		log().Warnf("feed item %q not added: %s", item.Title, err)
		return false
	}
	log().Infof("feed item %q added as %s", item.Title, gid)
	return true
}

func itemKey(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// itemLink picks the first magnet or http link of an item, looking at the
// item link and then its enclosures.
func itemLink(item *gofeed.Item) string {
	candidates := []string{item.Link}
	for _, e := range item.Enclosures {
		if e != nil {
			candidates = append(candidates, e.URL)
		}
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if strings.HasPrefix(c, "magnet:") ||
			strings.HasPrefix(c, "http://") ||
			strings.HasPrefix(c, "https://") {
			return c
		}
	}
	return ""
}
