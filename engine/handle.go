package engine

// handle is a snapshot of a download taken under the session lock.
type handle struct {
	status          DownloadStatus
	totalLength     int64
	completedLength int64
	uploadLength    int64
	downloadSpeed   int
	uploadSpeed     int
	infoHash        []byte
	pieceLength     int
	numPieces       int
	connections     int
	errorCode       int
	belongsTo       GID
	dir             string
	files           []FileData
	options         KeyVals
	meta            BtMetaInfo
}

func newHandle(d *download) *handle {
	h := &handle{
		status:          d.status,
		totalLength:     d.totalLength,
		completedLength: d.completedLength,
		uploadLength:    d.uploadLength,
		downloadSpeed:   d.downloadSpeed,
		uploadSpeed:     d.uploadSpeed,
		infoHash:        append([]byte(nil), d.infoHash...),
		pieceLength:     d.pieceLength,
		numPieces:       d.numPieces,
		connections:     d.connections,
		errorCode:       d.errorCode,
		belongsTo:       d.belongsTo,
		dir:             d.dir,
		options:         append(KeyVals(nil), d.options...),
		meta:            d.meta,
	}
	if d.http != nil {
		h.completedLength = d.http.completed.Load()
		if total := d.http.total.Load(); total > 0 {
			h.totalLength = total
		}
	}
	h.files = append([]FileData(nil), d.fileData()...)
	if d.dir != "" {
		if _, ok := h.options.Get(OptDir); !ok {
			h.options = append(h.options, KeyVal{OptDir, d.dir})
		}
	}
	return h
}

func (h *handle) Status() DownloadStatus { return h.status }
func (h *handle) TotalLength() int64     { return h.totalLength }
func (h *handle) CompletedLength() int64 { return h.completedLength }
func (h *handle) UploadLength() int64    { return h.uploadLength }
func (h *handle) DownloadSpeed() int     { return h.downloadSpeed }
func (h *handle) UploadSpeed() int       { return h.uploadSpeed }
func (h *handle) InfoHash() []byte       { return h.infoHash }
func (h *handle) PieceLength() int       { return h.pieceLength }
func (h *handle) NumPieces() int         { return h.numPieces }
func (h *handle) Connections() int       { return h.connections }
func (h *handle) ErrorCode() int         { return h.errorCode }
func (h *handle) FollowedBy() []GID      { return nil }
func (h *handle) Following() GID         { return 0 }
func (h *handle) BelongsTo() GID         { return h.belongsTo }
func (h *handle) Dir() string            { return h.dir }
func (h *handle) Files() []FileData      { return h.files }
func (h *handle) NumFiles() int          { return len(h.files) }
func (h *handle) BtMetaInfo() BtMetaInfo { return h.meta }
func (h *handle) Options() KeyVals       { return sortedOptions(h.options) }
func (h *handle) Close()                 {}

func (h *handle) Option(name string) (string, bool) {
	return h.options.Get(name)
}
