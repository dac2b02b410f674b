package server

import (
	"strings"
	"time"
)

const (
	statInterval = 3 * time.Second
	sysInterval  = 5 * time.Second
	rssInterval  = 30 * time.Minute
)

func (s *Server) backgroundRoutines() {

	// initial state
	s.refreshGlobalStat()
	s.refreshSystemStats()

	go s.tickerRoutine()

	// rss updater
	go func() {
		// skip if not configured
		if !strings.HasPrefix(s.config.RssURL, "http") {
			return
		}
		s.updateRSS()
		tk := time.NewTicker(rssInterval)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				s.updateRSS()
			case <-s.done:
				return
			}
		}
	}()
}

// tickerRoutine refreshes the engine and system stats while anyone is
// connected to /sync.
func (s *Server) tickerRoutine() {
	statTk := time.NewTicker(statInterval)
	defer statTk.Stop()
	sysTk := time.NewTicker(sysInterval)
	defer sysTk.Stop()

	for {
		select {
		case <-statTk.C:
			if s.state.NumConnections() > 0 {
				s.refreshGlobalStat()
			}
		case <-sysTk.C:
			if s.state.NumConnections() > 0 {
				s.refreshSystemStats()
			}
		case <-s.done:
			return
		}
	}
}

func (s *Server) refreshGlobalStat() {
	st, err := s.core().GlobalStat()
	if err != nil {
		log().Debugf("global stat: %s", err)
		return
	}
	s.state.Lock()
	s.state.GlobalStat = newGlobalStat(st)
	s.state.Unlock()
	s.state.Push()
}

func (s *Server) refreshSystemStats() {
	s.state.Lock()
	s.state.Stats.System.loadStats(s.config.DownloadDirectory)
	s.state.Unlock()
	s.state.Stats.System.pusher.Push()
}
