package engine

import (
	"sort"
	"strconv"
	"strings"
)

// Option names understood by the native engine.
const (
	OptDir                     = "dir"
	OptOut                     = "out"
	OptMaxConcurrentDownloads  = "max-concurrent-downloads"
	OptMaxOverallDownloadLimit = "max-overall-download-limit"
	OptMaxOverallUploadLimit   = "max-overall-upload-limit"
	OptMaxDownloadLimit        = "max-download-limit"
	OptListenPort              = "listen-port"
	OptSeedRatio               = "seed-ratio"
	OptEnableUpload            = "enable-upload"
	OptEnableSeeding           = "enable-seeding"
	OptAllProxy                = "all-proxy"
)

const defaultMaxConcurrentDownloads = 5

func defaultGlobalOptions() KeyVals {
	return KeyVals{
		{OptDir, "."},
		{OptMaxConcurrentDownloads, strconv.Itoa(defaultMaxConcurrentDownloads)},
		{OptMaxOverallDownloadLimit, "0"},
		{OptMaxOverallUploadLimit, "0"},
		{OptMaxDownloadLimit, "0"},
		{OptListenPort, "50007"},
		{OptSeedRatio, "0"},
		{OptEnableUpload, "true"},
		{OptEnableSeeding, "false"},
	}
}

// validateOption rejects values the engine could not apply.
func validateOption(key, val string) error {
	switch key {
	case OptMaxConcurrentDownloads, OptListenPort:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err != nil || n < 1 {
			return ErrnoInvalid
		}
	case OptMaxOverallDownloadLimit, OptMaxOverallUploadLimit, OptMaxDownloadLimit:
		if _, err := rateLimiter(val); err != nil {
			return ErrnoInvalid
		}
	case OptSeedRatio:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err != nil || f < 0 {
			return ErrnoInvalid
		}
	case OptEnableUpload, OptEnableSeeding:
		if _, err := strconv.ParseBool(strings.TrimSpace(val)); err != nil {
			return ErrnoInvalid
		}
	case OptOut:
		if strings.ContainsAny(val, `/\`) {
			return ErrnoInvalid
		}
	}
	return nil
}

func validateOptions(kv KeyVals) error {
	for _, o := range kv {
		if err := validateOption(o.Key, o.Value); err != nil {
			return err
		}
	}
	return nil
}

func optInt(kv KeyVals, key string, def int) int {
	if v, ok := kv.Get(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func optFloat(kv KeyVals, key string, def float64) float64 {
	if v, ok := kv.Get(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func optBool(kv KeyVals, key string, def bool) bool {
	if v, ok := kv.Get(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func sortedOptions(kv KeyVals) KeyVals {
	m := kv.Map()
	out := make(KeyVals, 0, len(m))
	for k, v := range m {
		out = append(out, KeyVal{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
