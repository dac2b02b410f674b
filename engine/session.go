package engine

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anacrolix/torrent"
	"golang.org/x/time/rate"
)

const runInterval = 100 * time.Millisecond

const (
	shutdownNone int32 = iota
	shutdownGraceful
	shutdownForce
)

type pendingEvent struct {
	event DownloadEvent
	gid   GID
}

// nativeSession implements Session. Events are collected while the session
// lock is held and delivered on the goroutine calling Run once it is released.
type nativeSession struct {
	mu        sync.Mutex
	lib       *nativeLibrary
	config    SessionConfig
	options   KeyVals
	downloads map[GID]*download
	active    []GID
	waiting   *syncList
	events    []pendingEvent
	finalized bool

	shutdown atomic.Int32
	wake     chan struct{}

	client  *http.Client
	overall *rate.Limiter
	upload  *rate.Limiter
	bt      *torrent.Client
	btDir   string
}

func newSession(lib *nativeLibrary, options KeyVals, config SessionConfig) (*nativeSession, error) {
	if err := validateOptions(options); err != nil {
		return nil, err
	}
	opts := defaultGlobalOptions().Merge(options)
	s := &nativeSession{
		lib:       lib,
		config:    config,
		options:   opts,
		downloads: map[GID]*download{},
		waiting:   newSyncList(),
		wake:      make(chan struct{}, 1),
		overall:   rate.NewLimiter(rate.Inf, 0),
		upload:    rate.NewLimiter(rate.Inf, 0),
	}
	if v, ok := opts.Get(OptMaxOverallDownloadLimit); ok {
		applyRate(s.overall, v)
	}
	if v, ok := opts.Get(OptMaxOverallUploadLimit); ok {
		applyRate(s.upload, v)
	}
	proxy, _ := opts.Get(OptAllProxy)
	s.client = newHTTPClient(proxy)
	return s, nil
}

func (s *nativeSession) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *nativeSession) queueEvent(ev DownloadEvent, gid GID) {
	s.events = append(s.events, pendingEvent{ev, gid})
}

func (s *nativeSession) emit(events []pendingEvent) {
	cb := s.config.OnEvent
	if cb == nil {
		return
	}
	for _, e := range events {
		cb(s, e.event, e.gid)
	}
}

func (s *nativeSession) Run(mode RunMode) int {
	if mode == RunOnce {
		return s.runOnce()
	}
	timer := time.NewTimer(runInterval)
	defer timer.Stop()
	for {
		if ret := s.runOnce(); ret != 1 {
			return ret
		}
		select {
		case <-s.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
		timer.Reset(runInterval)
	}
}

func (s *nativeSession) runOnce() int {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return -1
	}
	now := time.Now()
	ret := 0
	if lvl := s.shutdown.Swap(shutdownNone); lvl != shutdownNone {
		if lvl == shutdownGraceful {
			s.pollActive(now)
		}
		s.haltAll()
		log.Printf("session shut down (force=%v)", lvl == shutdownForce)
	} else {
		s.pollActive(now)
		s.promote(now)
		if len(s.active) > 0 || s.waiting.Len() > 0 || s.config.KeepRunning {
			ret = 1
		}
	}
	events := s.events
	s.events = nil
	s.mu.Unlock()

	s.emit(events)
	return ret
}

func (s *nativeSession) pollActive(now time.Time) {
	keep := s.active[:0]
	for _, g := range s.active {
		d := s.downloads[g]
		switch d.poll(now) {
		case pollRunning:
			keep = append(keep, g)
		case pollBtDone:
			d.btNotified = true
			s.queueEvent(EventBtComplete, g)
			keep = append(keep, g)
		case pollDone:
			d.halt()
			d.status = StatusComplete
			if d.kind == kindTorrent && !d.btNotified {
				d.btNotified = true
				s.queueEvent(EventBtComplete, g)
			}
			s.queueEvent(EventComplete, g)
		case pollFailed:
			log.Debugf("%s %s failed in poll", d.kind, g)
			d.halt()
			d.status = StatusError
			if d.errorCode == 0 {
				d.errorCode = errCodeUnknown
			}
			s.queueEvent(EventError, g)
		}
	}
	s.active = keep
}

func (s *nativeSession) promote(now time.Time) {
	limit := optInt(s.options, OptMaxConcurrentDownloads, defaultMaxConcurrentDownloads)
	for len(s.active) < limit {
		g, ok := s.waiting.Pop()
		if !ok {
			break
		}
		d := s.downloads[g]
		if err := s.start(d); err != nil {
			log.Printf("%s %s failed to start: %s", d.kind, g, err)
			d.status = StatusError
			d.errorCode = errCodeUnknown
			s.queueEvent(EventError, g)
			continue
		}
		log.Debugf("%s %s promoted, %d active", d.kind, g, len(s.active)+1)
		d.status = StatusActive
		d.startedAt = now
		s.active = append(s.active, g)
		s.queueEvent(EventStart, g)
	}
}

func (s *nativeSession) start(d *download) error {
	switch d.kind {
	case kindTorrent:
		c, err := s.btClient()
		if err != nil {
			return err
		}
		return d.startTorrent(c, s.btDir)
	default:
		d.startHTTP(s.client, s.overall)
		return nil
	}
}

// haltAll stops every running or queued download.
func (s *nativeSession) haltAll() {
	for _, g := range s.active {
		d := s.downloads[g]
		d.halt()
		d.status = StatusRemoved
		s.queueEvent(EventStop, g)
	}
	s.active = nil
	for {
		g, ok := s.waiting.Pop()
		if !ok {
			break
		}
		s.downloads[g].status = StatusRemoved
		s.queueEvent(EventStop, g)
	}
}

func (s *nativeSession) Shutdown(force bool) int {
	lvl := shutdownGraceful
	if force {
		lvl = shutdownForce
	}
	for {
		cur := s.shutdown.Load()
		if cur >= lvl || s.shutdown.CompareAndSwap(cur, lvl) {
			break
		}
	}
	s.signal()
	return 0
}

func (s *nativeSession) Final() int {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return -1
	}
	s.finalized = true
	for _, g := range s.active {
		s.downloads[g].halt()
	}
	s.active = nil
	s.events = nil
	bt := s.bt
	s.bt = nil
	s.mu.Unlock()

	if bt != nil {
		bt.Close()
	}
	s.signal()
	log.Printf("session finalized")
	return 0
}

func (s *nativeSession) add(d *download, position int) GID {
	s.downloads[d.gid] = d
	s.waiting.Insert(d.gid, position)
	s.signal()
	log.Println("added", d.kind, d.gid, d.name)
	return d.gid
}

func (s *nativeSession) AddURI(uris []string, options KeyVals, position int) (GID, error) {
	if len(uris) == 0 {
		return 0, ErrnoInvalid
	}
	if err := validateOptions(options); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return 0, ErrnoState
	}

	if isMagnet(uris[0]) {
		if _, err := torrent.TorrentSpecFromMagnetUri(uris[0]); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrnoInvalid, err)
		}
		d := newDownload(kindTorrent, options, s.options)
		d.magnet = uris[0]
		d.name = torrentName(nil, d.magnet)
		return s.add(d, position), nil
	}

	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return 0, fmt.Errorf("%w: unsupported uri %q", ErrnoInvalid, raw)
		}
	}
	d := newDownload(kindHTTP, options, s.options)
	d.uris = append([]string(nil), uris...)
	d.name = filename(uris, options)
	return s.add(d, position), nil
}

func (s *nativeSession) AddTorrent(torrentFile string, webSeedURIs []string, options KeyVals, position int) (GID, error) {
	if err := validateOptions(options); err != nil {
		return 0, err
	}
	spec, err := loadTorrentSpec(torrentFile, webSeedURIs)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrnoIO, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return 0, ErrnoState
	}
	d := newDownload(kindTorrent, options, s.options)
	d.spec = spec
	d.name = torrentName(spec, "")
	d.infoHash = append([]byte(nil), spec.InfoHash[:]...)
	return s.add(d, position), nil
}

func (s *nativeSession) AddMetalink(metalinkFile string, options KeyVals, position int) ([]GID, error) {
	if err := validateOptions(options); err != nil {
		return nil, err
	}
	files, err := loadMetalink(metalinkFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrnoIO, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil, ErrnoState
	}
	gids := make([]GID, 0, len(files))
	for i, mf := range files {
		d := newDownload(kindMetalink, options, s.options)
		d.uris = mf.URIs
		d.name = mf.Name
		d.totalLength = mf.Size
		pos := position
		if pos >= 0 {
			pos += i
		}
		gids = append(gids, s.add(d, pos))
	}
	return gids, nil
}

func (s *nativeSession) lookup(gid GID) (*download, error) {
	if s.finalized {
		return nil, ErrnoState
	}
	d, ok := s.downloads[gid]
	if !ok {
		return nil, ErrnoNotFound
	}
	return d, nil
}

func (s *nativeSession) dropActive(gid GID) {
	for i, g := range s.active {
		if g == gid {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

func (s *nativeSession) RemoveDownload(gid GID, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return err
	}
	switch d.status {
	case StatusActive:
		d.halt()
		s.dropActive(gid)
	case StatusWaiting:
		s.waiting.Remove(gid)
	case StatusPaused:
	default:
		return ErrnoState
	}
	d.status = StatusRemoved
	s.queueEvent(EventStop, gid)
	s.signal()
	log.Println("removed", d.kind, gid, "force", force)
	return nil
}

func (s *nativeSession) PauseDownload(gid GID, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return err
	}
	switch d.status {
	case StatusActive:
		d.halt()
		s.dropActive(gid)
	case StatusWaiting:
		s.waiting.Remove(gid)
	default:
		return ErrnoState
	}
	d.status = StatusPaused
	s.queueEvent(EventPause, gid)
	s.signal()
	log.Println("paused", d.kind, gid, "force", force)
	return nil
}

func (s *nativeSession) UnpauseDownload(gid GID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return err
	}
	if d.status != StatusPaused {
		return ErrnoState
	}
	d.status = StatusWaiting
	s.waiting.Push(gid)
	s.signal()
	return nil
}

func (s *nativeSession) ChangePosition(gid GID, pos int, how OffsetMode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return -1, err
	}
	if d.status != StatusWaiting {
		return -1, ErrnoState
	}
	return s.waiting.Move(gid, pos, how)
}

func (s *nativeSession) ChangeOption(gid GID, options KeyVals) error {
	if err := validateOptions(options); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return err
	}
	if d.isStopped() {
		return ErrnoState
	}
	d.options = d.options.Merge(options)
	if v, ok := options.Get(OptMaxDownloadLimit); ok {
		applyRate(d.limiter, v)
	}
	if d.status != StatusActive {
		if v, ok := options.Get(OptDir); ok && v != "" {
			d.dir = v
		}
		if v, ok := options.Get(OptOut); ok && v != "" && d.kind == kindHTTP {
			d.name = v
		}
	}
	return nil
}

func (s *nativeSession) GlobalOption(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options.Get(name)
}

func (s *nativeSession) GlobalOptions() (KeyVals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil, ErrnoState
	}
	return sortedOptions(s.options), nil
}

func (s *nativeSession) ChangeGlobalOption(options KeyVals) error {
	if err := validateOptions(options); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrnoState
	}
	s.options = s.options.Merge(options)
	if v, ok := options.Get(OptMaxOverallDownloadLimit); ok {
		applyRate(s.overall, v)
	}
	if v, ok := options.Get(OptMaxOverallUploadLimit); ok {
		applyRate(s.upload, v)
	}
	s.signal()
	return nil
}

func (s *nativeSession) GlobalStat() GlobalStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st GlobalStat
	for _, d := range s.downloads {
		switch d.status {
		case StatusActive:
			st.NumActive++
			st.DownloadSpeed += d.downloadSpeed
			st.UploadSpeed += d.uploadSpeed
		case StatusWaiting, StatusPaused:
			st.NumWaiting++
		default:
			st.NumStopped++
		}
	}
	return st
}

func (s *nativeSession) ActiveDownloads() ([]GID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil, ErrnoState
	}
	return append([]GID{}, s.active...), nil
}

func (s *nativeSession) DownloadHandle(gid GID) DownloadHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookup(gid)
	if err != nil {
		return nil
	}
	return newHandle(d)
}
