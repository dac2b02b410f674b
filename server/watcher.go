package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

type watchKind int

const (
	watchSkip watchKind = iota
	watchTorrent
	watchMetalink
)

func classify(name string) watchKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".torrent":
		return watchTorrent
	case ".metalink", ".meta4":
		return watchMetalink
	}
	return watchSkip
}

// startWatcher adds the task files already in dir and then every one that
// is created or written there.
func (s *Server) startWatcher(dir string) error {
	if dir == "" {
		return fmt.Errorf("no watch directory")
	}
	if w, err := os.Stat(dir); os.IsNotExist(err) || (err == nil && !w.IsDir()) {
		return fmt.Errorf("[Watcher] %s is not dir", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher
	log().Infof("Task Watcher: watching task files in %s", dir)

	s.scanWatchDir(dir)
	go s.watchLoop(watcher)
	return nil
}

func (s *Server) scanWatchDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log().Warnf("Task Watcher: %s", err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			s.addTaskFile(filepath.Join(dir, e.Name()))
		}
	}
}

func (s *Server) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.addTaskFile(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log().Warnf("Task Watcher: %s", err)
		}
	}
}

// addTaskFile hands a .torrent or metalink file to the engine and removes
// it once the engine accepted it.
func (s *Server) addTaskFile(path string) bool {
	kind := classify(path)
	if kind == watchSkip {
		return false
	}
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return false
	}

	var err error
	switch kind {
	case watchTorrent:
		_, err = s.core().AddTorrent(path, nil, nil, -1)
	case watchMetalink:
		_, err = s.core().AddMetalink(path, nil, -1)
	}
	if err != nil {
		log().Warnf("Task Watcher: fail to add %s, ERR: %s", path, err)
		return false
	}
	if err := os.Remove(path); err != nil {
		log().Warnf("Task Watcher: added %s, remove failed: %s", path, err)
		return true
	}
	log().Infof("Task Watcher: added %s, file removed", path)
	return true
}
