// Package hostinfo reports load figures of the machine the node runs on.
// Its modules need no device link.
package hostinfo

import (
	"context"
	"fmt"
	"harnsnode/pkg/datatype"
	"harnsnode/pkg/module"
	"harnsnode/pkg/runtime/constant"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	ClassHost = "hostinfo.Host"

	ParamMemory = "memory"
	ParamUptime = "uptime"

	// MemoryWarn is the memory usage in percent above which status turns WARN.
	MemoryWarn = 90.0
)

type Sampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	Uptime(ctx context.Context) (uint64, error)
}

type psutilSampler struct{}

// CPUPercent is the load since the previous call, the first call measures
// since boot.
func (psutilSampler) CPUPercent(ctx context.Context) (float64, error) {
	p, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, fmt.Errorf("no cpu figures")
	}
	return p[0], nil
}

func (psutilSampler) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (psutilSampler) Uptime(ctx context.Context) (uint64, error) {
	return host.UptimeWithContext(ctx)
}

var Host = NewHostClass(psutilSampler{})

func Register(r *module.Registry) error {
	return r.Register(Host)
}

// NewHostClass builds the host class on top of s.
func NewHostClass(s Sampler) *module.Class {
	percent := func() datatype.DataType { return datatype.NewFloatRange(0, 100, datatype.WithUnit("%")) }
	return module.MustClass(ClassHost, "load of the node host",
		module.Readable("cpu load", percent()),
		module.WithParameters(
			&module.Parameter{Name: ParamMemory, Description: "memory in use", DataType: percent()},
			&module.Parameter{Name: ParamUptime, Description: "time since boot", DataType: datatype.NewIntRange(0, 1<<62, "s")},
		),
		module.WithReader(module.ParamValue, func(ctx context.Context, _ *module.Module) (interface{}, error) {
			return sample(s.CPUPercent(ctx))
		}),
		module.WithReader(ParamMemory, func(ctx context.Context, _ *module.Module) (interface{}, error) {
			return sample(s.MemoryPercent(ctx))
		}),
		module.WithReader(ParamUptime, func(ctx context.Context, _ *module.Module) (interface{}, error) {
			up, err := s.Uptime(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: uptime: %v", constant.ErrProtocol, err)
			}
			return int64(up), nil
		}),
		module.WithReader(module.ParamStatus, func(ctx context.Context, _ *module.Module) (interface{}, error) {
			used, err := s.MemoryPercent(ctx)
			if err != nil {
				return datatype.StatusValue{Code: constant.ERROR, Text: err.Error()}, nil
			}
			if used > MemoryWarn {
				return datatype.StatusValue{Code: constant.WARN, Text: fmt.Sprintf("memory %.0f%% used", used)}, nil
			}
			return datatype.StatusValue{Code: constant.IDLE, Text: "ok"}, nil
		}),
	)
}

func sample(v float64, err error) (interface{}, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrProtocol, err)
	}
	return v, nil
}
