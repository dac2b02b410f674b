package engine

import (
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"
	"golang.org/x/time/rate"
)

type downloadKind uint8

const (
	kindHTTP downloadKind = iota
	kindTorrent
	kindMetalink
)

// aria2 compatible error codes reported by DownloadHandle.ErrorCode.
const (
	errCodeUnknown     = 1
	errCodeNotFound    = 3
	errCodeNetwork     = 6
	errCodeCreateFile  = 16
	errCodeBadResponse = 22
)

type pollResult uint8

const (
	pollRunning pollResult = iota
	pollBtDone
	pollDone
	pollFailed
)

// download is the engine side record of one gid. All fields are guarded by
// the owning session's mutex, the transfer counters are atomics.
type download struct {
	gid       GID
	kind      downloadKind
	status    DownloadStatus
	options   KeyVals
	dir       string
	name      string
	uris      []string
	errorCode int
	belongsTo GID
	addedAt   time.Time
	startedAt time.Time
	limiter   *rate.Limiter

	// progress
	totalLength     int64
	completedLength int64
	uploadLength    int64
	downloadSpeed   int
	uploadSpeed     int
	connections     int
	updatedAt       time.Time

	http *httpTransfer

	// bittorrent
	magnet        string
	spec          *torrent.TorrentSpec
	t             *torrent.Torrent
	store         storage.ClientImplCloser
	infoHash      []byte
	pieceLength   int
	numPieces     int
	files         []FileData
	meta          BtMetaInfo
	btCompleted   bool
	btNotified    bool
	seedRatio     float64
	seeding       bool
	downloadAllOn bool
}

func newDownload(kind downloadKind, options, global KeyVals) *download {
	d := &download{
		gid:     newGID(),
		kind:    kind,
		status:  StatusWaiting,
		options: options,
		addedAt: time.Now(),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	d.dir, _ = options.Get(OptDir)
	if d.dir == "" {
		d.dir, _ = global.Get(OptDir)
	}
	if lim, ok := options.Get(OptMaxDownloadLimit); ok {
		applyRate(d.limiter, lim)
	} else if lim, ok := global.Get(OptMaxDownloadLimit); ok {
		applyRate(d.limiter, lim)
	}
	d.seedRatio = optFloat(global, OptSeedRatio, 0)
	d.seeding = optBool(global, OptEnableSeeding, false)
	return d
}

// filename picks the output name of an http download: the out option,
// else the last path segment of the first uri.
func filename(uris []string, options KeyVals) string {
	if out, ok := options.Get(OptOut); ok && out != "" {
		return out
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return "index.html"
}

func (d *download) path() string {
	return filepath.Join(d.dir, d.name)
}

func (d *download) isStopped() bool {
	switch d.status {
	case StatusComplete, StatusError, StatusRemoved:
		return true
	}
	return false
}

// updateRates derives speeds from the byte deltas since the last poll.
func (d *download) updateRates(now time.Time, completed, uploaded int64) {
	if !d.updatedAt.IsZero() && !now.After(d.updatedAt) {
		// same sample time; speeds stay until the clock moves
		d.completedLength = completed
		d.uploadLength = uploaded
		return
	}
	if !d.updatedAt.IsZero() {
		dtinv := float64(time.Second) / float64(now.Sub(d.updatedAt))
		d.downloadSpeed = int(float64(completed-d.completedLength) * dtinv)
		d.uploadSpeed = int(float64(uploaded-d.uploadLength) * dtinv)
		if d.downloadSpeed < 0 {
			d.downloadSpeed = 0
		}
		if d.uploadSpeed < 0 {
			d.uploadSpeed = 0
		}
	}
	d.completedLength = completed
	d.uploadLength = uploaded
	d.updatedAt = now
}

func (d *download) resetRates() {
	d.downloadSpeed = 0
	d.uploadSpeed = 0
	d.connections = 0
	d.updatedAt = time.Time{}
}

func (d *download) poll(now time.Time) pollResult {
	switch d.kind {
	case kindTorrent:
		return d.pollTorrent(now)
	default:
		return d.pollHTTP(now)
	}
}

// halt stops the running transfer and keeps the progress made so far.
func (d *download) halt() {
	switch d.kind {
	case kindTorrent:
		d.stopTorrent()
	default:
		if d.http != nil {
			d.http.stop()
			d.completedLength = d.http.completed.Load()
			if total := d.http.total.Load(); total > 0 {
				d.totalLength = total
			}
			d.http = nil
		}
	}
	d.resetRates()
}

func (d *download) fileData() []FileData {
	if d.kind == kindTorrent {
		return d.files
	}
	used := -1
	length, completed := d.totalLength, d.completedLength
	if d.http != nil {
		used = int(d.http.current.Load())
		completed = d.http.completed.Load()
		if total := d.http.total.Load(); total > 0 {
			length = total
		}
	} else if d.status != StatusWaiting && d.status != StatusPaused {
		used = len(d.uris) - 1
	}
	uris := make([]URIData, len(d.uris))
	for i, u := range d.uris {
		st := URIWaiting
		if i <= used {
			st = URIUsed
		}
		uris[i] = URIData{URI: u, Status: st}
	}
	return []FileData{{
		Index:           1,
		Path:            d.path(),
		Length:          length,
		CompletedLength: completed,
		Selected:        true,
		URIs:            uris,
	}}
}
