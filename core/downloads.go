package core

import (
	"encoding/hex"

	"github.com/boypt/dlbridge/engine"
)

// DownloadInfo is the boundary view of a download handle. Gids are 16
// digit hex strings.
type DownloadInfo struct {
	GID             string
	Status          engine.DownloadStatus
	TotalLength     int64
	CompletedLength int64
	UploadLength    int64
	DownloadSpeed   int
	UploadSpeed     int
	InfoHash        string
	PieceLength     int
	NumPieces       int
	Connections     int
	ErrorCode       int
	FollowedBy      []string
	Following       string
	BelongsTo       string
	Dir             string
	NumFiles        int
}

func hexGIDs(gids []engine.GID) []string {
	out := make([]string, 0, len(gids))
	for _, g := range gids {
		out = append(out, g.Hex())
	}
	return out
}

func (s *State) withSession(op string, fn func(sess engine.Session) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireSession(op); err != nil {
		return err
	}
	return fn(s.session)
}

func (s *State) withHandle(op, gid string, fn func(h engine.DownloadHandle)) error {
	return s.withSession(op, func(sess engine.Session) error {
		h := sess.DownloadHandle(engine.HexToGID(gid))
		if h == nil {
			return &Error{Code: CodeHandleFailed, Op: op, GID: gid}
		}
		defer h.Close()
		fn(h)
		return nil
	})
}

func wrapEngine(op string, err error) error {
	if err == nil {
		return nil
	}
	return engineError(op, engine.Code(err), err)
}

func (s *State) AddURI(uris []string, options engine.KeyVals, position int) (gid string, err error) {
	const op = "addUri"
	err = s.withSession(op, func(sess engine.Session) error {
		g, err := sess.AddURI(uris, options, position)
		if err != nil {
			return wrapEngine(op, err)
		}
		gid = g.Hex()
		return nil
	})
	return gid, err
}

func (s *State) AddTorrent(torrentFile string, webSeedURIs []string, options engine.KeyVals, position int) (gid string, err error) {
	const op = "addTorrent"
	err = s.withSession(op, func(sess engine.Session) error {
		g, err := sess.AddTorrent(torrentFile, webSeedURIs, options, position)
		if err != nil {
			return wrapEngine(op, err)
		}
		gid = g.Hex()
		return nil
	})
	return gid, err
}

func (s *State) AddMetalink(metalinkFile string, options engine.KeyVals, position int) (gids []string, err error) {
	const op = "addMetalink"
	err = s.withSession(op, func(sess engine.Session) error {
		gs, err := sess.AddMetalink(metalinkFile, options, position)
		if err != nil {
			return wrapEngine(op, err)
		}
		gids = hexGIDs(gs)
		return nil
	})
	return gids, err
}

func (s *State) RemoveDownload(gid string, force bool) error {
	const op = "removeDownload"
	return s.withSession(op, func(sess engine.Session) error {
		return wrapEngine(op, sess.RemoveDownload(engine.HexToGID(gid), force))
	})
}

func (s *State) PauseDownload(gid string, force bool) error {
	const op = "pauseDownload"
	return s.withSession(op, func(sess engine.Session) error {
		return wrapEngine(op, sess.PauseDownload(engine.HexToGID(gid), force))
	})
}

func (s *State) UnpauseDownload(gid string) error {
	const op = "unpauseDownload"
	return s.withSession(op, func(sess engine.Session) error {
		return wrapEngine(op, sess.UnpauseDownload(engine.HexToGID(gid)))
	})
}

// ChangePosition moves a waiting download and returns its new position.
func (s *State) ChangePosition(gid string, pos int, how engine.OffsetMode) (newPos int, err error) {
	const op = "changePosition"
	err = s.withSession(op, func(sess engine.Session) error {
		p, err := sess.ChangePosition(engine.HexToGID(gid), pos, how)
		if err != nil {
			return wrapEngine(op, err)
		}
		newPos = p
		return nil
	})
	return newPos, err
}

func (s *State) ChangeOption(gid string, options engine.KeyVals) error {
	const op = "changeOption"
	return s.withSession(op, func(sess engine.Session) error {
		return wrapEngine(op, sess.ChangeOption(engine.HexToGID(gid), options))
	})
}

func (s *State) GlobalOption(name string) (value string, ok bool, err error) {
	err = s.withSession("getGlobalOption", func(sess engine.Session) error {
		value, ok = sess.GlobalOption(name)
		return nil
	})
	return value, ok, err
}

func (s *State) GlobalOptions() (options engine.KeyVals, err error) {
	const op = "getGlobalOptions"
	err = s.withSession(op, func(sess engine.Session) error {
		kv, err := sess.GlobalOptions()
		if err != nil {
			return wrapEngine(op, err)
		}
		options = kv
		return nil
	})
	return options, err
}

func (s *State) ChangeGlobalOption(options engine.KeyVals) error {
	const op = "changeGlobalOption"
	return s.withSession(op, func(sess engine.Session) error {
		return wrapEngine(op, sess.ChangeGlobalOption(options))
	})
}

func (s *State) GlobalStat() (stat engine.GlobalStat, err error) {
	err = s.withSession("getGlobalStat", func(sess engine.Session) error {
		stat = sess.GlobalStat()
		return nil
	})
	return stat, err
}

func (s *State) ActiveDownloads() (gids []string, err error) {
	const op = "getActiveDownload"
	err = s.withSession(op, func(sess engine.Session) error {
		gs, err := sess.ActiveDownloads()
		if err != nil {
			return wrapEngine(op, err)
		}
		gids = hexGIDs(gs)
		return nil
	})
	return gids, err
}

func (s *State) DownloadInfo(gid string) (info *DownloadInfo, err error) {
	err = s.withHandle("getDownloadInfo", gid, func(h engine.DownloadHandle) {
		info = &DownloadInfo{
			GID:             gid,
			Status:          h.Status(),
			TotalLength:     h.TotalLength(),
			CompletedLength: h.CompletedLength(),
			UploadLength:    h.UploadLength(),
			DownloadSpeed:   h.DownloadSpeed(),
			UploadSpeed:     h.UploadSpeed(),
			InfoHash:        hex.EncodeToString(h.InfoHash()),
			PieceLength:     h.PieceLength(),
			NumPieces:       h.NumPieces(),
			Connections:     h.Connections(),
			ErrorCode:       h.ErrorCode(),
			FollowedBy:      hexGIDs(h.FollowedBy()),
			Following:       h.Following().Hex(),
			BelongsTo:       h.BelongsTo().Hex(),
			Dir:             h.Dir(),
			NumFiles:        h.NumFiles(),
		}
	})
	return info, err
}

func (s *State) DownloadFiles(gid string) (files []engine.FileData, err error) {
	err = s.withHandle("getDownloadFiles", gid, func(h engine.DownloadHandle) {
		files = h.Files()
	})
	return files, err
}

// DownloadOption returns the value of one download option; ok is false
// when the download does not carry it.
func (s *State) DownloadOption(gid, name string) (value string, ok bool, err error) {
	err = s.withHandle("getDownloadOption", gid, func(h engine.DownloadHandle) {
		value, ok = h.Option(name)
	})
	return value, ok, err
}

func (s *State) DownloadOptions(gid string) (options engine.KeyVals, err error) {
	err = s.withHandle("getDownloadOptions", gid, func(h engine.DownloadHandle) {
		options = h.Options()
	})
	return options, err
}

func (s *State) DownloadBtMetaInfo(gid string) (meta engine.BtMetaInfo, err error) {
	err = s.withHandle("getDownloadBtMetaInfo", gid, func(h engine.DownloadHandle) {
		meta = h.BtMetaInfo()
	})
	return meta, err
}
