package engine

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func Test_rateLimiter(t *testing.T) {
	type args struct {
		rstr string
	}
	tests := []struct {
		name    string
		args    args
		want    *rate.Limiter
		wantErr bool
	}{
		{"low", args{"LOW"}, rate.NewLimiter(rate.Limit(50000), 50000*3), false},
		{"case", args{"LoW"}, rate.NewLimiter(rate.Limit(50000), 50000*3), false},
		{"err", args{"fake"}, nil, true},
		{"unit", args{"10kb"}, rate.NewLimiter(rate.Limit(10240), 10240*3), false},
		{"unit", args{"100kb"}, rate.NewLimiter(rate.Limit(102400), 102400*3), false},
		{"unit", args{"100 kb"}, rate.NewLimiter(rate.Limit(102400), 102400*3), false},
		{"inf", args{"0"}, rate.NewLimiter(rate.Inf, 0), false},
		{"inf", args{""}, rate.NewLimiter(rate.Inf, 0), false},
		{"inf", args{"unlimited"}, rate.NewLimiter(rate.Inf, 0), false},
		{"overflow", args{"4gb"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rateLimiter(tt.args.rstr)
			if (err != nil) != tt.wantErr {
				t.Errorf("rateLimiter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("rateLimiter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_NormlizeConfigDir(t *testing.T) {
	c := &Config{DownloadDirectory: "downloads", WatchDirectory: "torrents"}
	changed, err := c.NormlizeConfigDir()
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, filepath.IsAbs(c.DownloadDirectory))
	assert.True(t, filepath.IsAbs(c.WatchDirectory))

	changed, err = c.NormlizeConfigDir()
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestConfig_Limiters(t *testing.T) {
	c := &Config{DownloadRate: "bogus", UploadRate: "high"}
	assert.Equal(t, rate.Inf, c.DownloadLimiter().Limit())
	assert.Equal(t, "", c.DownloadRate)
	assert.Equal(t, rate.Limit(1500000), c.UploadLimiter().Limit())
}

func TestConfig_SessionOptions(t *testing.T) {
	c := &Config{
		DownloadDirectory:      "/data",
		IncomingPort:           6881,
		EnableUpload:           true,
		SeedRatio:              1.5,
		DownloadRate:           "low",
		MaxConcurrentDownloads: 2,
	}
	kv := c.SessionOptions()
	assert.NoError(t, validateOptions(kv))

	m := kv.Map()
	assert.Equal(t, "/data", m[OptDir])
	assert.Equal(t, "6881", m[OptListenPort])
	assert.Equal(t, "true", m[OptEnableUpload])
	assert.Equal(t, "false", m[OptEnableSeeding])
	assert.Equal(t, "1.5", m[OptSeedRatio])
	assert.Equal(t, "low", m[OptMaxOverallDownloadLimit])
	assert.Equal(t, "2", m[OptMaxConcurrentDownloads])
	_, ok := m[OptMaxOverallUploadLimit]
	assert.False(t, ok)
}
