package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/boypt/dlbridge/bridge"
	"github.com/boypt/dlbridge/common"
	"github.com/jpillora/velox"
)

func (s *Server) webHandle(w http.ResponseWriter, r *http.Request) {

	switch r.URL.Path {
	case "/", "/index.json":
		s.serveIndex(w, r)
		return
	case "/sync":
		//handle realtime client connections, setting content-encoding to avoid gzip buffer
		w.Header().Set("Content-Encoding", "identity")
		conn, err := velox.Sync(&s.state, w, r)
		if err != nil {
			log().Warnf("sync failed: %s", err)
			return
		}
		s.state.Lock()
		s.state.Users[conn.ID()] = r.RemoteAddr
		s.state.Unlock()
		s.state.Push()
		conn.Wait()
		s.state.Lock()
		delete(s.state.Users, conn.ID())
		s.state.Unlock()
		s.state.Push()
		return
	case "/js/velox.js":
		velox.JS.ServeHTTP(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, apiPrefix) {
		w.Header().Set("Access-Control-Allow-Headers", "authorization")
		s.restAPIhandle(w, r)
		return
	}
	http.NotFound(w, r)
}

type indexInfo struct {
	Title   string   `json:"title"`
	Version string   `json:"version"`
	Session string   `json:"session"`
	Methods []string `json:"methods"`
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	s.state.Lock()
	info := indexInfo{
		Title:   s.state.Stats.Title,
		Version: s.state.Stats.Version,
		Session: s.state.Stats.Session,
		Methods: bridge.Methods(),
	}
	s.state.Unlock()
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	common.HandleError(json.NewEncoder(w).Encode(v))
}
