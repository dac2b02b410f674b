package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metalinkV4 = `<?xml version="1.0" encoding="UTF-8"?>
<metalink xmlns="urn:ietf:params:xml:ns:metalink">
  <file name="example.ext">
    <size>14471447</size>
    <url priority="2">https://mirror2.example.com/example.ext</url>
    <url priority="1">http://mirror1.example.com/example.ext</url>
    <url>ftp://ftp.example.com/example.ext</url>
  </file>
  <file name="../../etc/passwd">
    <url priority="1">http://example.com/passwd</url>
  </file>
  <file name="torrent-only">
    <metaurl mediatype="torrent">http://example.com/x.torrent</metaurl>
  </file>
</metalink>`

const metalinkV3 = `<?xml version="1.0" encoding="UTF-8"?>
<metalink version="3.0" xmlns="http://www.metalinker.org/">
  <files>
    <file name="sub/file.iso">
      <size>1024</size>
      <resources>
        <url type="http" preference="10">http://low.example.com/file.iso</url>
        <url type="bittorrent" preference="100">http://example.com/file.torrent</url>
        <url type="https" preference="90">https://high.example.com/file.iso</url>
      </resources>
    </file>
  </files>
</metalink>`

func Test_parseMetalink(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    []metalinkFile
		wantErr bool
	}{
		{"v4", metalinkV4, []metalinkFile{
			{Name: "example.ext", Size: 14471447, URIs: []string{
				"http://mirror1.example.com/example.ext",
				"https://mirror2.example.com/example.ext",
			}},
			{Name: "etc/passwd", URIs: []string{"http://example.com/passwd"}},
		}, false},
		{"v3", metalinkV3, []metalinkFile{
			{Name: "sub/file.iso", Size: 1024, URIs: []string{
				"https://high.example.com/file.iso",
				"http://low.example.com/file.iso",
			}},
		}, false},
		{"empty", `<metalink xmlns="urn:ietf:params:xml:ns:metalink"></metalink>`, nil, true},
		{"garbage", `not xml`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMetalink([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
