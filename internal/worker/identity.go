package worker

import (
	"net"
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/hydrajobs/hydra/internal/domain"
)

// FillHostInfo populates the host-derived worker fields: OS, hostname,
// IP, subnet, CPU count, run user and working directory. Config-derived
// fields (id, domain, tags, concurrency) are left untouched.
func FillHostInfo(info *domain.WorkerInfo) {
	info.OS, info.Hostname = hostOS()
	info.CPUCount = cpuCount()
	info.IP = outboundIP()
	info.Subnet = subnetOf(info.IP)
	info.RunUser = currentUser()
	info.Workdir = workingDir()
}

// subnetOf keeps the first three octets of an IPv4 address, the grouping
// jobs use for subnet affinity.
func subnetOf(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	return strings.Join(parts[:3], ".")
}

// outboundIP finds the host's primary address. The UDP dial never sends
// a packet; it only makes the kernel pick a route.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer func() { _ = conn.Close() }()

	addr, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "127.0.0.1"
	}
	return addr
}

func hostOS() (string, string) {
	if hi, err := host.Info(); err == nil {
		return hi.OS, hi.Hostname
	}
	hn, _ := os.Hostname()
	return runtime.GOOS, hn
}

func cpuCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func workingDir() string {
	wd, _ := os.Getwd()
	return wd
}
