package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"
)

type Config struct {
	EngineDebug            bool          `yaml:"EngineDebug"`
	MuteEngineLog          bool          `yaml:"MuteEngineLog"`
	DownloadDirectory      string        `yaml:"DownloadDirectory"`
	WatchDirectory         string        `yaml:"WatchDirectory"`
	EnableUpload           bool          `yaml:"EnableUpload"`
	EnableSeeding          bool          `yaml:"EnableSeeding"`
	IncomingPort           int           `yaml:"IncomingPort"`
	DoneCmd                string        `yaml:"DoneCmd"`
	SeedRatio              float32       `yaml:"SeedRatio"`
	UploadRate             string        `yaml:"UploadRate"`
	DownloadRate           string        `yaml:"DownloadRate"`
	MaxConcurrentDownloads int           `yaml:"MaxConcurrentDownloads"`
	KeepRunning            bool          `yaml:"KeepRunning"`
	StopTimeout            time.Duration `yaml:"StopTimeout"`
	ProxyURL               string        `yaml:"ProxyURL"`
	RssURL                 string        `yaml:"RssURL"`
	RedisAddr              string        `yaml:"RedisAddr"`
	RedisChannel           string        `yaml:"RedisChannel"`
}

func InitConf(specPath string) (*Config, error) {

	viper.SetConfigName("dlbridge")
	viper.AddConfigPath("/etc/dlbridge/")
	viper.AddConfigPath("$HOME/.dlbridge")
	viper.AddConfigPath(".")

	viper.SetDefault("DownloadDirectory", "./downloads")
	viper.SetDefault("WatchDirectory", "./torrents")
	viper.SetDefault("EnableUpload", true)
	viper.SetDefault("EnableSeeding", false)
	viper.SetDefault("DoneCmd", "")
	viper.SetDefault("SeedRatio", 0)
	viper.SetDefault("IncomingPort", 50007)
	viper.SetDefault("MaxConcurrentDownloads", defaultMaxConcurrentDownloads)
	viper.SetDefault("KeepRunning", true)
	viper.SetDefault("StopTimeout", "0")
	viper.SetDefault("RedisChannel", "dlbridge:events")

	// user specific config path
	if stat, err := os.Stat(specPath); stat != nil && err == nil {
		viper.SetConfigFile(specPath)
	}

	configExists := true
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || strings.Contains(err.Error(), "Not Found") {
			configExists = false
			if specPath == "" {
				specPath = "./dlbridge.yaml"
			}
			viper.SetConfigFile(specPath)
		} else {
			return nil, err
		}
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return nil, err
	}

	dirChanged, err := c.NormlizeConfigDir()
	if err != nil {
		return nil, err
	}
	if dirChanged {
		viper.Set("DownloadDirectory", c.DownloadDirectory)
		viper.Set("WatchDirectory", c.WatchDirectory)
	}

	cf := viper.ConfigFileUsed()
	log.Println("[config] selected config file: ", cf)
	if !configExists || dirChanged {
		if err := c.WriteYaml(); err != nil {
			log.Println("[config] config file not written: ", cf, err)
		} else {
			log.Println("[config] config file written: ", cf, "exists:", configExists, "dirchanged", dirChanged)
		}
	}

	return c, nil
}

func (c *Config) NormlizeConfigDir() (bool, error) {
	var changed bool
	if c.DownloadDirectory != "" {
		dldir, err := filepath.Abs(c.DownloadDirectory)
		if err != nil {
			return false, fmt.Errorf("ERROR: Invalid path %s, %w", c.DownloadDirectory, err)
		}
		if c.DownloadDirectory != dldir {
			changed = true
			c.DownloadDirectory = dldir
		}
	}

	if c.WatchDirectory != "" {
		wdir, err := filepath.Abs(c.WatchDirectory)
		if err != nil {
			return false, fmt.Errorf("ERROR: Invalid path %s, %w", c.WatchDirectory, err)
		}
		if c.WatchDirectory != wdir {
			changed = true
			c.WatchDirectory = wdir
		}
	}

	return changed, nil
}

func (c *Config) UploadLimiter() *rate.Limiter {
	l, err := rateLimiter(c.UploadRate)
	if err != nil {
		log.Printf("RateLimit [%s] unreconized, set as unlimited", c.UploadRate)
		c.UploadRate = ""
		return rate.NewLimiter(rate.Inf, 0)
	}
	return l
}

func (c *Config) DownloadLimiter() *rate.Limiter {
	l, err := rateLimiter(c.DownloadRate)
	if err != nil {
		log.Printf("RateLimit [%s] unreconized, set as unlimited", c.DownloadRate)
		c.DownloadRate = ""
		return rate.NewLimiter(rate.Inf, 0)
	}
	return l
}

// SessionOptions renders the config as the global options of a new session.
func (c *Config) SessionOptions() KeyVals {
	kv := KeyVals{
		{OptEnableUpload, strconv.FormatBool(c.EnableUpload)},
		{OptEnableSeeding, strconv.FormatBool(c.EnableSeeding)},
		{OptSeedRatio, strconv.FormatFloat(float64(c.SeedRatio), 'f', -1, 32)},
	}
	if c.DownloadDirectory != "" {
		kv = append(kv, KeyVal{OptDir, c.DownloadDirectory})
	}
	if c.IncomingPort > 0 {
		kv = append(kv, KeyVal{OptListenPort, strconv.Itoa(c.IncomingPort)})
	}
	if c.MaxConcurrentDownloads > 0 {
		kv = append(kv, KeyVal{OptMaxConcurrentDownloads, strconv.Itoa(c.MaxConcurrentDownloads)})
	}
	if c.DownloadRate != "" {
		kv = append(kv, KeyVal{OptMaxOverallDownloadLimit, c.DownloadRate})
	}
	if c.UploadRate != "" {
		kv = append(kv, KeyVal{OptMaxOverallUploadLimit, c.UploadRate})
	}
	if c.ProxyURL != "" {
		kv = append(kv, KeyVal{OptAllProxy, c.ProxyURL})
	}
	return kv
}

func (c *Config) WriteYaml() error {
	cf := viper.ConfigFileUsed()
	d, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(cf, d, 0666)
}

func (c *Config) GetCmdConfig() (string, []string, error) {
	if c.DoneCmd == "" {
		return "", nil, fmt.Errorf("unconfigred Donecmd")
	}
	env := append(os.Environ(), fmt.Sprintf("CLD_DIR=%s", c.DownloadDirectory))
	return c.DoneCmd, env, nil
}
