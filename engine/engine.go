package engine

import "fmt"

// RunMode selects how Session.Run drives the engine.
type RunMode int

const (
	// RunDefault blocks until every download finished or Shutdown was
	// requested (and, with KeepRunning, only on Shutdown).
	RunDefault RunMode = iota
	// RunOnce performs a single iteration and returns.
	RunOnce
)

// DownloadEvent is the kind of a download notification. Values 1-6 match
// the aria2 event numbers the command surface forwards verbatim.
type DownloadEvent int

const (
	EventStart DownloadEvent = iota + 1
	EventPause
	EventStop
	EventComplete
	EventError
	EventBtComplete
)

func (e DownloadEvent) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventPause:
		return "pause"
	case EventStop:
		return "stop"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	case EventBtComplete:
		return "bt-complete"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

type DownloadStatus int

const (
	StatusActive DownloadStatus = iota
	StatusWaiting
	StatusPaused
	StatusComplete
	StatusError
	StatusRemoved
)

func (s DownloadStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusWaiting:
		return "waiting"
	case StatusPaused:
		return "paused"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	case StatusRemoved:
		return "removed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// OffsetMode is the reference point of ChangePosition.
type OffsetMode int

const (
	OffsetSet OffsetMode = iota
	OffsetCur
	OffsetEnd
)

type URIStatus int

const (
	URIUsed URIStatus = iota
	URIWaiting
)

type BtFileMode int

const (
	BtFileModeNone BtFileMode = iota
	BtFileModeSingle
	BtFileModeMulti
)

// EventCallback is invoked by the engine for every download notification.
// It may be called from the goroutine running Session.Run or from an
// engine-internal goroutine and must not block.
type EventCallback func(s Session, event DownloadEvent, gid GID)

type SessionConfig struct {
	KeepRunning bool
	OnEvent     EventCallback
}

type GlobalStat struct {
	DownloadSpeed int
	UploadSpeed   int
	NumActive     int
	NumWaiting    int
	NumStopped    int
}

type URIData struct {
	URI    string
	Status URIStatus
}

type FileData struct {
	Index           int
	Path            string
	Length          int64
	CompletedLength int64
	Selected        bool
	URIs            []URIData
}

type BtMetaInfo struct {
	AnnounceList [][]string
	Comment      string
	CreationDate int64
	Mode         BtFileMode
	Name         string
}

// Library is the process-wide part of an engine.
type Library interface {
	// Init prepares the engine for use and returns 0 on success.
	Init() int
	// Deinit releases what Init acquired and returns 0 on success.
	Deinit() int
	// NewSession returns nil when the session could not be created.
	NewSession(options KeyVals, config SessionConfig) Session
}

// Session is one transfer-management session. Mutating and query calls may
// be issued from any goroutine, Run and Final are never issued concurrently
// by the core.
type Session interface {
	Run(mode RunMode) int
	Shutdown(force bool) int
	Final() int

	AddURI(uris []string, options KeyVals, position int) (GID, error)
	AddTorrent(torrentFile string, webSeedURIs []string, options KeyVals, position int) (GID, error)
	AddMetalink(metalinkFile string, options KeyVals, position int) ([]GID, error)
	RemoveDownload(gid GID, force bool) error
	PauseDownload(gid GID, force bool) error
	UnpauseDownload(gid GID) error
	ChangePosition(gid GID, pos int, how OffsetMode) (int, error)
	ChangeOption(gid GID, options KeyVals) error
	GlobalOption(name string) (string, bool)
	GlobalOptions() (KeyVals, error)
	ChangeGlobalOption(options KeyVals) error
	GlobalStat() GlobalStat
	ActiveDownloads() ([]GID, error)
	// DownloadHandle returns nil for an unknown gid. The handle must be
	// released with Close.
	DownloadHandle(gid GID) DownloadHandle
}

// DownloadHandle is a snapshot view of one download.
type DownloadHandle interface {
	Status() DownloadStatus
	TotalLength() int64
	CompletedLength() int64
	UploadLength() int64
	DownloadSpeed() int
	UploadSpeed() int
	InfoHash() []byte
	PieceLength() int
	NumPieces() int
	Connections() int
	ErrorCode() int
	FollowedBy() []GID
	Following() GID
	BelongsTo() GID
	Dir() string
	Files() []FileData
	NumFiles() int
	Option(name string) (string, bool)
	Options() KeyVals
	BtMetaInfo() BtMetaInfo
	Close()
}
