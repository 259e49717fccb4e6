// Package sysinfo gathers host facts for GET /sysinfo.
//
// Facts are split into facets (system, cpu, memory, storage, network,
// battery). Facets are read concurrently and independently: a failing facet
// is left out of the result instead of failing the whole request. Only when
// every facet fails does Collect return ErrCollaboratorUnavailable.
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrCollaboratorUnavailable means no facet could be collected at all.
var ErrCollaboratorUnavailable = errors.New("host information unavailable")

// Facet names, also used as JSON keys and in logs.
const (
	FacetSystem  = "system"
	FacetCPU     = "cpu"
	FacetMemory  = "memory"
	FacetStorage = "storage"
	FacetNetwork = "network"
	FacetBattery = "battery"
)

// DefaultTimeout bounds one Collect call.
const DefaultTimeout = 5 * time.Second

// HostInfo is one collection result. Nil/empty fields are facets that failed
// or were not requested.
type HostInfo struct {
	System  *SystemInfo     `json:"system,omitempty"`
	CPU     *CPUInfo        `json:"cpu,omitempty"`
	Memory  *MemoryInfo     `json:"memory,omitempty"`
	Storage []DiskInfo      `json:"storage,omitempty"`
	Network []InterfaceInfo `json:"network,omitempty"`
	Battery []BatteryInfo   `json:"battery,omitempty"`

	CollectedAt time.Time `json:"collectedAt"`
	// Failed lists the facets that could not be collected.
	Failed []string `json:"failed,omitempty"`
}

// SystemInfo describes the host and the user running the process.
type SystemInfo struct {
	Hostname        string   `json:"hostname"`
	OS              string   `json:"os"`
	Platform        string   `json:"platform"`
	PlatformVersion string   `json:"platformVersion"`
	KernelVersion   string   `json:"kernelVersion"`
	Arch            string   `json:"arch"`
	UptimeSeconds   uint64   `json:"uptimeSeconds"`
	BootTime        uint64   `json:"bootTime"`
	CurrentUser     string   `json:"currentUser,omitempty"`
	LoggedInUsers   []string `json:"loggedInUsers,omitempty"`
}

// CPUInfo is the processor model and current load.
type CPUInfo struct {
	Model         string  `json:"model"`
	Vendor        string  `json:"vendor"`
	MHz           float64 `json:"mhz"`
	PhysicalCores int     `json:"physicalCores"`
	LogicalCores  int     `json:"logicalCores"`
	UsagePercent  float64 `json:"usagePercent"`
}

// MemoryInfo is virtual memory and swap usage, in bytes.
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
	SwapTotal   uint64  `json:"swapTotal"`
	SwapUsed    uint64  `json:"swapUsed"`
}

// DiskInfo is usage of one mounted filesystem, in bytes.
type DiskInfo struct {
	Device      string  `json:"device"`
	Mount       string  `json:"mount"`
	FSType      string  `json:"fsType"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

// InterfaceInfo is one network interface with its traffic counters.
type InterfaceInfo struct {
	Name        string   `json:"name"`
	MAC         string   `json:"mac,omitempty"`
	MTU         int      `json:"mtu"`
	Flags       []string `json:"flags,omitempty"`
	Addrs       []string `json:"addrs,omitempty"`
	BytesSent   uint64   `json:"bytesSent"`
	BytesRecv   uint64   `json:"bytesRecv"`
	PacketsSent uint64   `json:"packetsSent"`
	PacketsRecv uint64   `json:"packetsRecv"`
}

// BatteryInfo is the state of one battery.
type BatteryInfo struct {
	Index         int     `json:"index"`
	State         string  `json:"state"`
	ChargePercent float64 `json:"chargePercent"`
	CurrentWh     float64 `json:"currentWh"`
	FullWh        float64 `json:"fullWh"`
	DesignWh      float64 `json:"designWh"`
	ChargeRateW   float64 `json:"chargeRateW"`
	Voltage       float64 `json:"voltage"`
}

// Source reads individual facets. HostSource is the gopsutil-backed
// implementation; tests substitute their own.
type Source interface {
	System(ctx context.Context) (*SystemInfo, error)
	CPU(ctx context.Context) (*CPUInfo, error)
	Memory(ctx context.Context) (*MemoryInfo, error)
	Storage(ctx context.Context) ([]DiskInfo, error)
	Network(ctx context.Context) ([]InterfaceInfo, error)
	Battery(ctx context.Context) ([]BatteryInfo, error)
}

// Collector aggregates a Source into HostInfo values.
type Collector struct {
	src            Source
	includeBattery bool
	timeout        time.Duration
	logger         *slog.Logger
}

// NewCollector creates a Collector over src. The battery facet is only
// read when includeBattery is set.
func NewCollector(src Source, includeBattery bool, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		src:            src,
		includeBattery: includeBattery,
		timeout:        DefaultTimeout,
		logger:         logger,
	}
}

// WithTimeout returns a copy of c with a different per-call deadline.
func (c *Collector) WithTimeout(d time.Duration) *Collector {
	cp := *c
	cp.timeout = d
	return &cp
}

// facetResult is what one facet read reports back to Collect. set copies the
// value into a HostInfo and runs on the collecting goroutine only.
type facetResult struct {
	name string
	set  func(*HostInfo)
	err  error
}

// readFacet runs fn on its own goroutine and reports on results. The
// send never blocks: results is buffered for every facet, so a read that
// outlives Collect still exits.
func readFacet[T any](ctx context.Context, results chan<- facetResult, name string,
	fn func(context.Context) (T, error), set func(*HostInfo, T)) {
	go func() {
		v, err := fn(ctx)
		results <- facetResult{
			name: name,
			set:  func(info *HostInfo) { set(info, v) },
			err:  err,
		}
	}()
}

// Collect reads every facet concurrently and returns what succeeded.
// It returns by the deadline even when a facet read ignores ctx; facets that
// have not reported by then count as failed.
func (c *Collector) Collect(ctx context.Context) (*HostInfo, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	facets := []string{FacetSystem, FacetCPU, FacetMemory, FacetStorage, FacetNetwork}
	if c.includeBattery {
		facets = append(facets, FacetBattery)
	}
	results := make(chan facetResult, len(facets))

	readFacet(ctx, results, FacetSystem, c.src.System, func(i *HostInfo, v *SystemInfo) { i.System = v })
	readFacet(ctx, results, FacetCPU, c.src.CPU, func(i *HostInfo, v *CPUInfo) { i.CPU = v })
	readFacet(ctx, results, FacetMemory, c.src.Memory, func(i *HostInfo, v *MemoryInfo) { i.Memory = v })
	readFacet(ctx, results, FacetStorage, c.src.Storage, func(i *HostInfo, v []DiskInfo) { i.Storage = v })
	readFacet(ctx, results, FacetNetwork, c.src.Network, func(i *HostInfo, v []InterfaceInfo) { i.Network = v })
	if c.includeBattery {
		readFacet(ctx, results, FacetBattery, c.src.Battery, func(i *HostInfo, v []BatteryInfo) { i.Battery = v })
	}

	info := &HostInfo{CollectedAt: time.Now().UTC()}
	pending := make(map[string]bool, len(facets))
	for _, name := range facets {
		pending[name] = true
	}
	var (
		errs   []error
		failed []string
	)
	record := func(r facetResult) {
		delete(pending, r.name)
		if r.err != nil {
			c.logger.Warn("host facet unavailable", "facet", r.name, "error", r.err)
			errs = append(errs, fmt.Errorf("%s: %w", r.name, r.err))
			failed = append(failed, r.name)
			return
		}
		r.set(info)
	}

wait:
	for len(pending) > 0 {
		select {
		case r := <-results:
			record(r)
		case <-ctx.Done():
			// take whatever already arrived before giving up on the rest
			for {
				select {
				case r := <-results:
					record(r)
				default:
					break wait
				}
			}
		}
	}

	for _, name := range facets {
		if !pending[name] {
			continue
		}
		c.logger.Warn("host facet timed out", "facet", name, "error", ctx.Err())
		errs = append(errs, fmt.Errorf("%s: %w", name, ctx.Err()))
		failed = append(failed, name)
	}

	if len(failed) == len(facets) {
		return nil, fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, errors.Join(errs...))
	}
	info.Failed = sortFacets(failed)
	return info, nil
}

// sortFacets orders facet names as they appear in HostInfo.
func sortFacets(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	order := []string{FacetSystem, FacetCPU, FacetMemory, FacetStorage, FacetNetwork, FacetBattery}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range order {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}
