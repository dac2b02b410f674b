package server

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/boypt/dlbridge/bridge"
	"github.com/boypt/dlbridge/engine"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// maxEvents bounds the event log kept in the synced state.
const maxEvents = 100

type eventRecord struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Event    string    `json:"event"`
	Code     int       `json:"code"`
	GID      string    `json:"gid"`
	Name     string    `json:"name,omitempty"`
	Path     string    `json:"path,omitempty"`
	Status   string    `json:"status,omitempty"`
	Size     string    `json:"size,omitempty"`
	Progress string    `json:"progress,omitempty"`

	size int64
}

// onChannelMethod receives the calls the bridge makes towards its client,
// which for a server is only the download event notification.
func (s *Server) onChannelMethod(method string, args map[string]interface{}) error {
	if method != bridge.EventMethod {
		return fmt.Errorf("unexpected method %s", method)
	}
	a := bridge.Args(args)
	kind := engine.DownloadEvent(a.Int("event", 0))
	rec := s.recordEvent(kind, a.String("gid"))
	if s.sink != nil {
		s.sink.Publish(rec)
	}
	if kind == engine.EventComplete || kind == engine.EventBtComplete {
		go s.callDoneCmd(rec)
	}
	return nil
}

// recordEvent describes one event with what the engine still knows about
// the download and appends it to the event log.
func (s *Server) recordEvent(kind engine.DownloadEvent, gid string) eventRecord {
	rec := eventRecord{
		ID:    uuid.NewString(),
		Time:  time.Now(),
		Event: kind.String(),
		Code:  int(kind),
		GID:   gid,
	}
	if info, err := s.core().DownloadInfo(gid); err == nil {
		rec.Status = info.Status.String()
		rec.size = info.TotalLength
		rec.Size = humanize.Bytes(uint64(info.TotalLength))
		rec.Progress = progress(info.CompletedLength, info.TotalLength)
	}
	if files, err := s.core().DownloadFiles(gid); err == nil && len(files) > 0 {
		rec.Path = files[0].Path
		rec.Name = filepath.Base(files[0].Path)
	}

	s.state.Lock()
	s.state.Events = append(s.state.Events, rec)
	if n := len(s.state.Events); n > maxEvents {
		s.state.Events = append([]eventRecord{}, s.state.Events[n-maxEvents:]...)
	}
	s.state.Unlock()
	s.state.Push()

	log().Debugf("event %s gid %s %s", rec.Event, rec.GID, rec.Progress)
	return rec
}

func progress(completed, total int64) string {
	if total <= 0 {
		return humanize.Bytes(uint64(completed))
	}
	pct := float64(completed) / float64(total) * 100
	return fmt.Sprintf("%s / %s (%s%%)",
		humanize.Bytes(uint64(completed)),
		humanize.Bytes(uint64(total)),
		humanize.FtoaWithDigits(pct, 1))
}

// events returns a copy of the event log, oldest first.
func (s *Server) events() []eventRecord {
	s.state.Lock()
	defer s.state.Unlock()
	return append([]eventRecord{}, s.state.Events...)
}

func (s *Server) callDoneCmd(rec eventRecord) {
	cmdPath, env, err := s.config.GetCmdConfig()
	if err != nil {
		return
	}
	env = append(env,
		fmt.Sprintf("CLD_GID=%s", rec.GID),
		fmt.Sprintf("CLD_PATH=%s", rec.Path),
		fmt.Sprintf("CLD_SIZE=%d", rec.size),
		fmt.Sprintf("CLD_EVENT=%s", rec.Event),
		"CLD_TYPE=download",
	)
	cmd := exec.Command(cmdPath)
	cmd.Env = env
	log().Debugf("[DoneCmd] [%s] gid %s", cmdPath, rec.GID)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log().Warnf("[DoneCmd] Err: %s", err)
		return
	}
	log().Infof("[DoneCmd] Exit: %d Output: %s", cmd.ProcessState.ExitCode(), string(out))
}
