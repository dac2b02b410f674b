package bridge

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// platformVersion renders "<OS> <kernel version>", e.g. "Linux 6.1.0".
func platformVersion() string {
	name, version := runtime.GOOS, ""
	if info, err := host.Info(); err == nil {
		if info.OS != "" {
			name = info.OS
		}
		version = info.KernelVersion
		if version == "" {
			version = info.PlatformVersion
		}
	}
	name = strings.ToUpper(name[:1]) + name[1:]
	if version == "" {
		return name
	}
	return name + " " + version
}
