package bridge

import (
	"github.com/boypt/dlbridge/core"
	"github.com/boypt/dlbridge/engine"
)

func stringList(items []string) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	return out
}

func optionsMap(kv engine.KeyVals) map[string]interface{} {
	m := make(map[string]interface{}, len(kv))
	for k, v := range kv.Map() {
		m[k] = v
	}
	return m
}

func globalStatMap(st engine.GlobalStat) map[string]interface{} {
	return map[string]interface{}{
		"downloadSpeed": st.DownloadSpeed,
		"uploadSpeed":   st.UploadSpeed,
		"numActive":     st.NumActive,
		"numWaiting":    st.NumWaiting,
		"numStopped":    st.NumStopped,
	}
}

func downloadInfoMap(info *core.DownloadInfo) map[string]interface{} {
	return map[string]interface{}{
		"gid":             info.GID,
		"status":          int(info.Status),
		"totalLength":     info.TotalLength,
		"completedLength": info.CompletedLength,
		"uploadLength":    info.UploadLength,
		"downloadSpeed":   info.DownloadSpeed,
		"uploadSpeed":     info.UploadSpeed,
		"infoHash":        info.InfoHash,
		"pieceLength":     info.PieceLength,
		"numPieces":       info.NumPieces,
		"connections":     info.Connections,
		"errorCode":       info.ErrorCode,
		"followedBy":      stringList(info.FollowedBy),
		"following":       info.Following,
		"belongsTo":       info.BelongsTo,
		"dir":             info.Dir,
		"numFiles":        info.NumFiles,
	}
}

func filesList(files []engine.FileData) []interface{} {
	out := make([]interface{}, 0, len(files))
	for _, f := range files {
		uris := make([]interface{}, 0, len(f.URIs))
		for _, u := range f.URIs {
			uris = append(uris, map[string]interface{}{
				"uri":    u.URI,
				"status": int(u.Status),
			})
		}
		out = append(out, map[string]interface{}{
			"index":           f.Index,
			"path":            f.Path,
			"length":          f.Length,
			"completedLength": f.CompletedLength,
			"selected":        f.Selected,
			"uris":            uris,
		})
	}
	return out
}

func btMetaInfoMap(meta engine.BtMetaInfo) map[string]interface{} {
	tiers := make([]interface{}, 0, len(meta.AnnounceList))
	for _, tier := range meta.AnnounceList {
		tiers = append(tiers, stringList(tier))
	}
	return map[string]interface{}{
		"announceList": tiers,
		"comment":      meta.Comment,
		"creationDate": meta.CreationDate,
		"mode":         int(meta.Mode),
		"name":         meta.Name,
	}
}
