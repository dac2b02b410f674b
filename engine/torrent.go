package engine

import (
	"fmt"
	"strconv"
	"time"

	eglog "github.com/anacrolix/log"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/dustin/go-humanize"
)

func isMagnet(uri string) bool {
	return len(uri) > 7 && uri[:7] == "magnet:"
}

// btConfig builds the anacrolix client config from the global options.
func (s *nativeSession) btConfig() *torrent.ClientConfig {
	tc := torrent.NewDefaultClientConfig()
	tc.ListenPort = optInt(s.options, OptListenPort, 50007)
	tc.DataDir, _ = s.options.Get(OptDir)
	tc.Debug = s.lib.config.EngineDebug
	if s.lib.config.MuteEngineLog {
		tc.Logger = eglog.Discard
	}
	tc.NoUpload = !optBool(s.options, OptEnableUpload, true)
	tc.Seed = optBool(s.options, OptEnableSeeding, false)
	tc.UploadRateLimiter = s.upload
	tc.DownloadRateLimiter = s.overall
	if proxy, ok := s.options.Get(OptAllProxy); ok {
		tc.HTTPProxy = proxyFunc(proxy)
	}
	return tc
}

// newBtClient builds the per session anacrolix client.
func (s *nativeSession) newBtClient() (*torrent.Client, error) {
	return torrent.NewClient(s.btConfig())
}

func (s *nativeSession) btClient() (*torrent.Client, error) {
	if s.bt != nil {
		return s.bt, nil
	}
	c, err := s.newBtClient()
	if err != nil {
		return nil, err
	}
	log.Printf("[Torrent] client listening on %d", optInt(s.options, OptListenPort, 50007))
	s.bt = c
	s.btDir, _ = s.options.Get(OptDir)
	return c, nil
}

func loadTorrentSpec(torrentFile string, webSeedURIs []string) (*torrent.TorrentSpec, error) {
	info, err := metainfo.LoadFromFile(torrentFile)
	if err != nil {
		return nil, err
	}
	spec := torrent.TorrentSpecFromMetaInfo(info)
	spec.Webseeds = append(spec.Webseeds, webSeedURIs...)
	return spec, nil
}

func (d *download) startTorrent(c *torrent.Client, dataDir string) error {
	var (
		t   *torrent.Torrent
		err error
	)
	switch {
	case d.spec != nil:
		if d.dir != "" && d.dir != dataDir {
			d.store = storage.NewFile(d.dir)
			d.spec.Storage = d.store
		}
		t, _, err = c.AddTorrentSpec(d.spec)
	case d.magnet != "":
		t, err = c.AddMagnet(d.magnet)
	default:
		err = fmt.Errorf("download %s has no torrent source", d.gid)
	}
	if err != nil {
		return err
	}
	d.t = t
	d.downloadAllOn = false
	h := t.InfoHash()
	d.infoHash = append([]byte(nil), h[:]...)
	log.Printf("[Torrent] started %s %s", d.gid, h.HexString())
	return nil
}

// loadInfo copies the torrent metadata once it became available.
func (d *download) loadInfo() {
	info := d.t.Info()
	d.name = info.Name
	d.pieceLength = int(info.PieceLength)
	d.numPieces = d.t.NumPieces()
	d.totalLength = d.t.Length()

	mi := d.t.Metainfo()
	d.meta = BtMetaInfo{
		AnnounceList: mi.AnnounceList,
		Comment:      mi.Comment,
		CreationDate: mi.CreationDate,
		Mode:         BtFileModeSingle,
		Name:         info.Name,
	}
	if len(d.meta.AnnounceList) == 0 && mi.Announce != "" {
		d.meta.AnnounceList = [][]string{{mi.Announce}}
	}
	if len(info.Files) > 0 {
		d.meta.Mode = BtFileModeMulti
	}
	if d.spec == nil {
		d.spec = torrent.TorrentSpecFromMetaInfo(&mi)
	}
}

func (d *download) pollTorrent(now time.Time) pollResult {
	t := d.t
	if t == nil {
		return pollFailed
	}
	if t.Info() == nil {
		return pollRunning
	}
	if !d.downloadAllOn {
		d.loadInfo()
		t.DownloadAll()
		d.downloadAllOn = true
	}

	stats := t.Stats()
	d.connections = stats.ActivePeers
	d.updateRates(now, t.BytesCompleted(), stats.BytesWrittenData.Int64())
	d.updateFiles()

	if t.BytesMissing() > 0 {
		return pollRunning
	}
	if !d.btCompleted {
		d.btCompleted = true
		log.Printf("[Torrent] %s downloaded %s", d.gid, humanize.Bytes(uint64(d.totalLength)))
		if d.seeding && d.seedRatio > 0 {
			return pollBtDone
		}
		return pollDone
	}
	if read := stats.BytesReadData.Int64(); read > 0 &&
		float64(stats.BytesWrittenData.Int64())/float64(read) < d.seedRatio {
		return pollRunning
	}
	return pollDone
}

func (d *download) updateFiles() {
	tfiles := d.t.Files()
	if len(d.files) != len(tfiles) {
		d.files = make([]FileData, len(tfiles))
	}
	for i, f := range tfiles {
		d.files[i] = FileData{
			Index:           i + 1,
			Path:            f.Path(),
			Length:          f.Length(),
			CompletedLength: f.BytesCompleted(),
			Selected:        true,
		}
	}
}

func (d *download) stopTorrent() {
	if d.t == nil {
		return
	}
	if d.t.Info() != nil {
		d.updateFiles()
		d.completedLength = d.t.BytesCompleted()
	}
	d.t.Drop()
	d.t = nil
	d.downloadAllOn = false
	if d.store != nil {
		d.store.Close()
		d.store = nil
		d.spec.Storage = nil
	}
}

// torrentName is the display name before metadata arrives.
func torrentName(spec *torrent.TorrentSpec, magnet string) string {
	if spec != nil && spec.DisplayName != "" {
		return spec.DisplayName
	}
	if m, err := metainfo.ParseMagnetUri(magnet); err == nil {
		if m.DisplayName != "" {
			return m.DisplayName
		}
		return m.InfoHash.HexString()
	}
	return strconv.Quote(magnet)
}
