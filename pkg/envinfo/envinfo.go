// Package envinfo detects the hardware and OS of the machine benchmarks run
// on, for registering it as an Environment.
package envinfo

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ethpandaops/speedcenter/pkg/store"
)

// Info describes a host.
type Info struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	KernelVersion   string  `json:"kernel_version"`
	Arch            string  `json:"arch"`
	CPUModel        string  `json:"cpu_model"`
	CPUCores        int     `json:"cpu_cores"`
	CPUMhz          float64 `json:"cpu_mhz"`
	MemoryTotal     uint64  `json:"memory_total"`
}

// Detect collects host information. CPU details are best effort: hosts
// that do not expose a model name still report their core count.
func Detect(ctx context.Context) (*Info, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading memory info: %w", err)
	}

	info := &Info{
		Hostname:        hi.Hostname,
		OS:              hi.OS,
		Platform:        hi.Platform,
		PlatformVersion: hi.PlatformVersion,
		KernelVersion:   hi.KernelVersion,
		Arch:            hi.KernelArch,
		MemoryTotal:     vm.Total,
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = strings.TrimSpace(cpus[0].ModelName)
		info.CPUMhz = cpus[0].Mhz
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("counting cpus: %w", err)
	}

	info.CPUCores = cores

	return info, nil
}

// Environment converts the host info into an Environment called name. An
// empty name uses the hostname.
func (i *Info) Environment(name string) *store.Environment {
	if name == "" {
		name = i.Hostname
	}

	return &store.Environment{
		Name:   name,
		CPU:    i.cpuString(),
		Memory: i.memoryString(),
		OS:     i.osString(),
		Kernel: i.KernelVersion,
	}
}

func (i *Info) cpuString() string {
	model := i.CPUModel
	if model == "" {
		model = i.Arch
	}

	if i.CPUCores > 0 {
		return fmt.Sprintf("%s (%d threads)", model, i.CPUCores)
	}

	return model
}

func (i *Info) memoryString() string {
	if i.MemoryTotal == 0 {
		return ""
	}

	return units.BytesSize(float64(i.MemoryTotal))
}

func (i *Info) osString() string {
	if i.Platform == "" {
		return i.OS
	}

	if i.PlatformVersion == "" {
		return i.Platform
	}

	return i.Platform + " " + i.PlatformVersion
}

// SetMemory replaces the detected memory with a size such as "16GiB", for
// hosts where the visible total is not what benchmarks may use.
func (i *Info) SetMemory(size string) error {
	n, err := MemoryBytes(size)
	if err != nil {
		return err
	}

	if n <= 0 {
		return fmt.Errorf("memory %q must be positive", size)
	}

	i.MemoryTotal = uint64(n)

	return nil
}

// MemoryBytes parses a memory string such as "16GiB" or "512m" as stored
// in Environment.Memory.
func MemoryBytes(s string) (int64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parsing memory %q: %w", s, err)
	}

	return n, nil
}
