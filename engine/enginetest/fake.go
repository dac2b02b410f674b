// Package enginetest provides a scriptable in-memory engine for tests of
// code driving an engine.Library.
package enginetest

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boypt/dlbridge/engine"
)

// Library is a fake engine.Library. The exported codes may be set before
// use to script failures.
type Library struct {
	InitCode       int
	DeinitCode     int
	FailNewSession bool

	mu       sync.Mutex
	inits    int
	deinits  int
	sessions []*Session
}

func NewLibrary() *Library {
	return &Library{}
}

func (l *Library) Init() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inits++
	return l.InitCode
}

func (l *Library) Deinit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deinits++
	return l.DeinitCode
}

func (l *Library) NewSession(options engine.KeyVals, config engine.SessionConfig) engine.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailNewSession {
		return nil
	}
	s := newSession(options, config)
	l.sessions = append(l.sessions, s)
	return s
}

// Counts reports how often Init and Deinit were called.
func (l *Library) Counts() (inits, deinits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inits, l.deinits
}

// Session returns the most recently created session or nil.
func (l *Library) Session() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sessions) == 0 {
		return nil
	}
	return l.sessions[len(l.sessions)-1]
}

// Download is the fake record behind a gid. Tests mutate it with
// Session.Update.
type Download struct {
	Status          engine.DownloadStatus
	URIs            []string
	Options         engine.KeyVals
	TotalLength     int64
	CompletedLength int64
	UploadLength    int64
	DownloadSpeed   int
	UploadSpeed     int
	InfoHash        []byte
	PieceLength     int
	NumPieces       int
	Connections     int
	ErrorCode       int
	FollowedBy      []engine.GID
	Following       engine.GID
	BelongsTo       engine.GID
	Dir             string
	Files           []engine.FileData
	Meta            engine.BtMetaInfo
}

// Session is a fake engine.Session. Run(RunDefault) blocks until Shutdown
// or Finish; Run(RunOnce) behaves as scripted by SetRunOnce.
type Session struct {
	Options engine.KeyVals
	Config  engine.SessionConfig

	mu           sync.Mutex
	runOnceDelay time.Duration
	runOnceCode  int
	panicOnRun   bool
	finalCode    int
	addErr       error
	global       engine.KeyVals
	downloads    map[engine.GID]*Download
	order        []engine.GID
	nextGID      engine.GID

	release       chan struct{}
	running       atomic.Int32
	maxRunning    atomic.Int32
	runOnceCalls  atomic.Int32
	runDefCalls   atomic.Int32
	shutdowns     atomic.Int32
	lastForce     atomic.Bool
	finals        atomic.Int32
	finalInRun    atomic.Bool
	handlesOpened atomic.Int32
	handlesClosed atomic.Int32
}

func newSession(options engine.KeyVals, config engine.SessionConfig) *Session {
	return &Session{
		Options:   options,
		Config:    config,
		global:    append(engine.KeyVals(nil), options...),
		downloads: map[engine.GID]*Download{},
		nextGID:   0x1000,
		release:   make(chan struct{}, 1),
	}
}

// SetRunOnce scripts Run(RunOnce): it sleeps for delay and returns code.
func (s *Session) SetRunOnce(delay time.Duration, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runOnceDelay, s.runOnceCode = delay, code
}

// SetPanicOnRun makes every Run panic.
func (s *Session) SetPanicOnRun(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicOnRun = v
}

func (s *Session) SetFinalCode(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalCode = code
}

// SetAddError makes the Add* calls fail with err.
func (s *Session) SetAddError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addErr = err
}

// Finish lets a blocked Run(RunDefault) return 0 as if all work was done.
func (s *Session) Finish() {
	select {
	case s.release <- struct{}{}:
	default:
	}
}

// EmitEvent invokes the session callback on the calling goroutine.
func (s *Session) EmitEvent(ev engine.DownloadEvent, gid engine.GID) {
	if cb := s.Config.OnEvent; cb != nil {
		cb(s, ev, gid)
	}
}

// Running reports how many Run calls are in progress.
func (s *Session) Running() int { return int(s.running.Load()) }

// MaxRunning is the highest number of overlapping Run calls observed.
func (s *Session) MaxRunning() int { return int(s.maxRunning.Load()) }

func (s *Session) RunOnceCalls() int    { return int(s.runOnceCalls.Load()) }
func (s *Session) RunDefaultCalls() int { return int(s.runDefCalls.Load()) }
func (s *Session) Shutdowns() int       { return int(s.shutdowns.Load()) }
func (s *Session) LastShutdownForce() bool {
	return s.lastForce.Load()
}
func (s *Session) Finals() int { return int(s.finals.Load()) }

// FinalDuringRun reports whether Final was ever called while a Run was in
// progress.
func (s *Session) FinalDuringRun() bool { return s.finalInRun.Load() }

// OpenHandles is the number of handles returned and not yet closed.
func (s *Session) OpenHandles() int {
	return int(s.handlesOpened.Load() - s.handlesClosed.Load())
}

// Update applies fn to the download behind gid.
func (s *Session) Update(gid engine.GID, fn func(d *Download)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.downloads[gid]
	if ok {
		fn(d)
	}
	return ok
}

func (s *Session) enter() {
	n := s.running.Add(1)
	for {
		m := s.maxRunning.Load()
		if n <= m || s.maxRunning.CompareAndSwap(m, n) {
			return
		}
	}
}

func (s *Session) Run(mode engine.RunMode) int {
	s.enter()
	defer s.running.Add(-1)

	s.mu.Lock()
	delay, code, panics := s.runOnceDelay, s.runOnceCode, s.panicOnRun
	s.mu.Unlock()
	if panics {
		panic("enginetest: run failed")
	}

	if mode == engine.RunOnce {
		s.runOnceCalls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		return code
	}
	s.runDefCalls.Add(1)
	<-s.release
	return 0
}

func (s *Session) Shutdown(force bool) int {
	s.shutdowns.Add(1)
	s.lastForce.Store(force)
	s.Finish()
	return 0
}

func (s *Session) Final() int {
	if s.running.Load() > 0 {
		s.finalInRun.Store(true)
	}
	s.finals.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalCode
}

func (s *Session) add(d *Download) (engine.GID, error) {
	if s.addErr != nil {
		return 0, s.addErr
	}
	s.nextGID++
	gid := s.nextGID
	if d.Options == nil {
		d.Options = engine.KeyVals{}
	}
	s.downloads[gid] = d
	s.order = append(s.order, gid)
	return gid, nil
}

func (s *Session) AddURI(uris []string, options engine.KeyVals, position int) (engine.GID, error) {
	if len(uris) == 0 {
		return 0, engine.ErrnoInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(&Download{
		Status:  engine.StatusWaiting,
		URIs:    append([]string(nil), uris...),
		Options: options,
		Files: []engine.FileData{{
			Index:    1,
			Path:     "file",
			Selected: true,
			URIs:     []engine.URIData{{URI: uris[0], Status: engine.URIWaiting}},
		}},
	})
}

func (s *Session) AddTorrent(torrentFile string, webSeedURIs []string, options engine.KeyVals, position int) (engine.GID, error) {
	if torrentFile == "" {
		return 0, engine.ErrnoIO
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(&Download{
		Status:   engine.StatusWaiting,
		URIs:     append([]string(nil), webSeedURIs...),
		Options:  options,
		InfoHash: []byte{0xde, 0xad, 0xbe, 0xef},
		Meta: engine.BtMetaInfo{
			AnnounceList: [][]string{{"http://tracker.example.com/announce"}},
			Mode:         engine.BtFileModeSingle,
			Name:         torrentFile,
		},
	})
}

func (s *Session) AddMetalink(metalinkFile string, options engine.KeyVals, position int) ([]engine.GID, error) {
	if metalinkFile == "" {
		return nil, engine.ErrnoIO
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var gids []engine.GID
	for i := 0; i < 2; i++ {
		gid, err := s.add(&Download{Status: engine.StatusWaiting, Options: options})
		if err != nil {
			return nil, err
		}
		gids = append(gids, gid)
	}
	return gids, nil
}

func (s *Session) lookup(gid engine.GID) (*Download, error) {
	d, ok := s.downloads[gid]
	if !ok {
		return nil, engine.ErrnoNotFound
	}
	return d, nil
}

func (s *Session) RemoveDownload(gid engine.GID, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return err
	}
	d.Status = engine.StatusRemoved
	return nil
}

func (s *Session) PauseDownload(gid engine.GID, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return err
	}
	d.Status = engine.StatusPaused
	return nil
}

func (s *Session) UnpauseDownload(gid engine.GID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return err
	}
	if d.Status != engine.StatusPaused {
		return engine.ErrnoState
	}
	d.Status = engine.StatusWaiting
	return nil
}

func (s *Session) ChangePosition(gid engine.GID, pos int, how engine.OffsetMode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(gid); err != nil {
		return -1, err
	}
	switch how {
	case engine.OffsetSet:
		return pos, nil
	case engine.OffsetEnd:
		return len(s.order) - 1 + pos, nil
	}
	return pos, nil
}

func (s *Session) ChangeOption(gid engine.GID, options engine.KeyVals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return err
	}
	d.Options = d.Options.Merge(options)
	return nil
}

func (s *Session) GlobalOption(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.global.Get(name)
}

func (s *Session) GlobalOptions() (engine.KeyVals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append(engine.KeyVals(nil), s.global...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Session) ChangeGlobalOption(options engine.KeyVals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = s.global.Merge(options)
	return nil
}

func (s *Session) GlobalStat() engine.GlobalStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st engine.GlobalStat
	for _, d := range s.downloads {
		switch d.Status {
		case engine.StatusActive:
			st.NumActive++
			st.DownloadSpeed += d.DownloadSpeed
			st.UploadSpeed += d.UploadSpeed
		case engine.StatusWaiting, engine.StatusPaused:
			st.NumWaiting++
		default:
			st.NumStopped++
		}
	}
	return st
}

func (s *Session) ActiveDownloads() ([]engine.GID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []engine.GID{}
	for _, gid := range s.order {
		if s.downloads[gid].Status == engine.StatusActive {
			out = append(out, gid)
		}
	}
	return out, nil
}

func (s *Session) DownloadHandle(gid engine.GID) engine.DownloadHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.downloads[gid]
	if !ok {
		return nil
	}
	s.handlesOpened.Add(1)
	cp := *d
	return &handle{d: cp, s: s}
}

type handle struct {
	d Download
	s *Session
}

func (h *handle) Status() engine.DownloadStatus { return h.d.Status }
func (h *handle) TotalLength() int64            { return h.d.TotalLength }
func (h *handle) CompletedLength() int64        { return h.d.CompletedLength }
func (h *handle) UploadLength() int64           { return h.d.UploadLength }
func (h *handle) DownloadSpeed() int            { return h.d.DownloadSpeed }
func (h *handle) UploadSpeed() int              { return h.d.UploadSpeed }
func (h *handle) InfoHash() []byte              { return h.d.InfoHash }
func (h *handle) PieceLength() int              { return h.d.PieceLength }
func (h *handle) NumPieces() int                { return h.d.NumPieces }
func (h *handle) Connections() int              { return h.d.Connections }
func (h *handle) ErrorCode() int                { return h.d.ErrorCode }
func (h *handle) FollowedBy() []engine.GID      { return h.d.FollowedBy }
func (h *handle) Following() engine.GID         { return h.d.Following }
func (h *handle) BelongsTo() engine.GID         { return h.d.BelongsTo }
func (h *handle) Dir() string                   { return h.d.Dir }
func (h *handle) Files() []engine.FileData      { return h.d.Files }
func (h *handle) NumFiles() int                 { return len(h.d.Files) }
func (h *handle) Options() engine.KeyVals       { return h.d.Options }
func (h *handle) BtMetaInfo() engine.BtMetaInfo { return h.d.Meta }
func (h *handle) Close()                        { h.s.handlesClosed.Add(1) }
func (h *handle) Option(name string) (string, bool) {
	return h.d.Options.Get(name)
}
