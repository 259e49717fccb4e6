package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// cpuSampleWindow is how long CPU usage is sampled for.
const cpuSampleWindow = 250 * time.Millisecond

// HostSource reads facets from the local machine through gopsutil.
type HostSource struct{}

// NewHostSource returns the gopsutil-backed Source.
func NewHostSource() *HostSource { return &HostSource{} }

// System returns host identity, uptime and users.
func (HostSource) System(ctx context.Context) (*SystemInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	si := &SystemInfo{
		Hostname:        hi.Hostname,
		OS:              hi.OS,
		Platform:        hi.Platform,
		PlatformVersion: hi.PlatformVersion,
		KernelVersion:   hi.KernelVersion,
		Arch:            hi.KernelArch,
		UptimeSeconds:   hi.Uptime,
		BootTime:        hi.BootTime,
	}
	if si.OS == "" {
		si.OS = runtime.GOOS
	}
	if u, err := user.Current(); err == nil {
		si.CurrentUser = u.Username
	}
	// utmp is missing in many containers; users are best-effort.
	if users, err := host.UsersWithContext(ctx); err == nil {
		seen := make(map[string]bool, len(users))
		for _, u := range users {
			if u.User != "" && !seen[u.User] {
				seen[u.User] = true
				si.LoggedInUsers = append(si.LoggedInUsers, u.User)
			}
		}
	}
	return si, nil
}

// CPU returns the processor model and usage sampled over cpuSampleWindow.
func (HostSource) CPU(ctx context.Context) (*CPUInfo, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("cpu info: %w", err)
	}
	ci := &CPUInfo{}
	if len(infos) > 0 {
		ci.Model = infos[0].ModelName
		ci.Vendor = infos[0].VendorID
		ci.MHz = infos[0].Mhz
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		ci.PhysicalCores = n
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		ci.LogicalCores = n
	}
	if pcts, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); err == nil && len(pcts) > 0 {
		ci.UsagePercent = pcts[0]
	}
	return ci, nil
}

// Memory returns RAM and swap usage.
func (HostSource) Memory(ctx context.Context) (*MemoryInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	mi := &MemoryInfo{
		Total:       vm.Total,
		Available:   vm.Available,
		Used:        vm.Used,
		UsedPercent: vm.UsedPercent,
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		mi.SwapTotal = sw.Total
		mi.SwapUsed = sw.Used
	}
	return mi, nil
}

// Storage returns usage of every physical partition. Partitions whose usage
// cannot be read are skipped.
func (HostSource) Storage(ctx context.Context) ([]DiskInfo, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("partitions: %w", err)
	}
	out := make([]DiskInfo, 0, len(parts))
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		out = append(out, DiskInfo{
			Device:      p.Device,
			Mount:       p.Mountpoint,
			FSType:      p.Fstype,
			Total:       usage.Total,
			Used:        usage.Used,
			Free:        usage.Free,
			UsedPercent: usage.UsedPercent,
		})
	}
	if len(out) == 0 && len(parts) > 0 {
		return nil, errors.New("no readable partitions")
	}
	return out, nil
}

// Network returns every interface merged with its IO counters.
func (HostSource) Network(ctx context.Context) ([]InterfaceInfo, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("interfaces: %w", err)
	}

	counters := map[string]psnet.IOCountersStat{}
	if stats, err := psnet.IOCountersWithContext(ctx, true); err == nil {
		for _, s := range stats {
			counters[s.Name] = s
		}
	}

	out := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		ii := InterfaceInfo{
			Name:  iface.Name,
			MAC:   iface.HardwareAddr,
			MTU:   iface.MTU,
			Flags: iface.Flags,
		}
		for _, a := range iface.Addrs {
			ii.Addrs = append(ii.Addrs, a.Addr)
		}
		if s, ok := counters[iface.Name]; ok {
			ii.BytesSent = s.BytesSent
			ii.BytesRecv = s.BytesRecv
			ii.PacketsSent = s.PacketsSent
			ii.PacketsRecv = s.PacketsRecv
		}
		out = append(out, ii)
	}
	return out, nil
}
