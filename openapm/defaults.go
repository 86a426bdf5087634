package openapm

import (
	"net"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
)

// programName is the last element of the main module path, or the
// executable name when build info is unavailable.
func programName() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Path != "" {
		return path.Base(info.Main.Path)
	}
	return strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
}

func programVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.Main.Version
	}
	return ""
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

// hostIP returns the first IPv4 address of an interface that is up and not a
// loopback, or "".
func hostIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipNet.IP.To4(); ip != nil {
				return ip.String()
			}
		}
	}
	return ""
}

// constLabels computes the labels attached to every series: the built-in
// environment, program, version, host and ip, overridden by
// cfg.DefaultLabels, minus cfg.ExcludeDefaultLabels. Empty values are
// dropped.
func constLabels(cfg Config) map[string]string {
	labels := map[string]string{
		"environment": cfg.Environment,
		"program":     cfg.ServiceName,
		"version":     programVersion(),
		"host":        hostname(),
		"ip":          hostIP(),
	}
	for k, v := range cfg.DefaultLabels {
		labels[k] = v
	}
	for k, v := range labels {
		if v == "" || slices.Contains(cfg.ExcludeDefaultLabels, k) {
			delete(labels, k)
		}
	}
	return labels
}
