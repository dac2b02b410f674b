package engine

import (
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
)

// metalinkFile is one <file> entry with its http mirrors sorted by
// preference.
type metalinkFile struct {
	Name string
	Size int64
	URIs []string
}

type metalinkURL struct {
	Type       string `xml:"type,attr"`
	Priority   int    `xml:"priority,attr"`
	Preference int    `xml:"preference,attr"`
	Location   string `xml:",chardata"`
}

// metalink covers both RFC 5854 (v4, files directly under the root) and the
// 3.0 format (files under <files>, mirrors under <resources>).
type metalink struct {
	XMLName xml.Name `xml:"metalink"`
	Files   []struct {
		Name string        `xml:"name,attr"`
		Size int64         `xml:"size"`
		URLs []metalinkURL `xml:"url"`
	} `xml:"file"`
	V3Files []struct {
		Name      string        `xml:"name,attr"`
		Size      int64         `xml:"size"`
		Resources []metalinkURL `xml:"resources>url"`
	} `xml:"files>file"`
}

func parseMetalink(data []byte) ([]metalinkFile, error) {
	var m metalink
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	var out []metalinkFile
	for _, f := range m.Files {
		urls := f.URLs
		// v4: lower priority value wins
		sort.SliceStable(urls, func(i, j int) bool { return prio(urls[i].Priority) < prio(urls[j].Priority) })
		out = appendMetalinkFile(out, f.Name, f.Size, urls)
	}
	for _, f := range m.V3Files {
		urls := f.Resources
		// v3: higher preference value wins
		sort.SliceStable(urls, func(i, j int) bool { return urls[i].Preference > urls[j].Preference })
		out = appendMetalinkFile(out, f.Name, f.Size, urls)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("metalink has no downloadable file")
	}
	return out, nil
}

func prio(p int) int {
	if p <= 0 {
		return 999999
	}
	return p
}

func appendMetalinkFile(out []metalinkFile, name string, size int64, urls []metalinkURL) []metalinkFile {
	// names must stay inside the download directory
	name = path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))[1:]
	if name == "" {
		return out
	}
	mf := metalinkFile{Name: name, Size: size}
	for _, u := range urls {
		loc := strings.TrimSpace(u.Location)
		if u.Type != "" && u.Type != "http" && u.Type != "https" {
			continue
		}
		if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
			mf.URIs = append(mf.URIs, loc)
		}
	}
	if len(mf.URIs) == 0 {
		return out
	}
	return append(out, mf)
}

func loadMetalink(file string) ([]metalinkFile, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return parseMetalink(data)
}
