// Package ccu4 drives the cryostat control unit CCU4. The unit speaks a
// name=value line protocol; every query and set is answered with the
// current value of the named parameter.
package ccu4

import (
	"context"
	"fmt"
	"harnsnode/pkg/datatype"
	"harnsnode/pkg/link"
	"harnsnode/pkg/module"
	"harnsnode/pkg/runtime/constant"
	"math"
	"strconv"
)

const (
	ClassHeLevel = "ccu4.HeLevel"

	ParamEmptyLength = "empty_length"
	ParamFullLength  = "full_length"
	ParamSampleRate  = "sample_rate"
)

// Identification is run on every connect.
var Identification = []link.Probe{{Command: "cid", Pattern: "CCU4.*"}}

// HeLevelStatus maps the hsf code of the level meter.
var HeLevelStatus = module.MustStatusMapper(map[int]module.StatusEntry{
	0: {Code: constant.IDLE, Text: "sensor ok"},
	1: {Code: constant.ERROR, Text: "sensor warm"},
	2: {Code: constant.ERROR, Text: "no sensor"},
	3: {Code: constant.ERROR, Text: "timeout"},
	4: {Code: constant.ERROR, Text: "not yet read"},
	5: {Code: constant.DISABLED, Text: "disabled"},
})

var SampleRate = datatype.NewEnum("sample_rate",
	datatype.EnumMember{Name: "slow", Value: 0},
	datatype.EnumMember{Name: "fast", Value: 1},
)

// HeLevel is the helium level channel.
var HeLevel = module.MustClass(ClassHeLevel, "He level channel of CCU4",
	module.WithLink(link.DefaultTerminator, Identification...),
	module.Readable("helium level", datatype.NewFloatRange(0, 100, datatype.WithUnit("%"))),
	module.WithParameters(
		&module.Parameter{
			Name:        ParamEmptyLength,
			Description: "warm length when empty",
			DataType:    datatype.NewFloatRange(0, 2000, datatype.WithUnit("mm")),
			Access:      constant.AccessModeReadWrite,
			Persistent:  true,
			Group:       "calibration",
		},
		&module.Parameter{
			Name:        ParamFullLength,
			Description: "warm length when full",
			DataType:    datatype.NewFloatRange(0, 2000, datatype.WithUnit("mm")),
			Access:      constant.AccessModeReadWrite,
			Persistent:  true,
			Group:       "calibration",
		},
		&module.Parameter{
			Name:        ParamSampleRate,
			Description: "sample rate",
			DataType:    SampleRate,
			Access:      constant.AccessModeReadWrite,
		},
	),
	module.WithStatusMap(HeLevelStatus),
	module.WithReader(module.ParamValue, readFloat("h")),
	module.WithReader(module.ParamStatus, readStatus),
	module.WithReader(ParamEmptyLength, readFloat("hem")),
	module.WithWriter(ParamEmptyLength, writeFloat("hem")),
	module.WithReader(ParamFullLength, readFloat("hfu")),
	module.WithWriter(ParamFullLength, writeFloat("hfu")),
	module.WithReader(ParamSampleRate, readFloat("hf")),
	module.WithWriter(ParamSampleRate, writeInt("hf")),
)

func Register(r *module.Registry) error {
	return r.Register(HeLevel)
}

// query sends cmd and parses the echoed value as a number.
func query(ctx context.Context, m *module.Module, cmd string) (float64, error) {
	reply, err := m.Query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s replied %q, expected a number", constant.ErrProtocol, cmd, reply)
	}
	return v, nil
}

func readFloat(name string) module.ReadFunc {
	return func(ctx context.Context, m *module.Module) (interface{}, error) {
		return query(ctx, m, name)
	}
}

func writeFloat(name string) module.WriteFunc {
	return func(ctx context.Context, m *module.Module, value interface{}) (interface{}, error) {
		return query(ctx, m, fmt.Sprintf("%s=%g", name, value.(float64)))
	}
}

func writeInt(name string) module.WriteFunc {
	return func(ctx context.Context, m *module.Module, value interface{}) (interface{}, error) {
		return query(ctx, m, fmt.Sprintf("%s=%d", name, value.(int64)))
	}
}

func readStatus(ctx context.Context, m *module.Module) (interface{}, error) {
	v, err := query(ctx, m, "hsf")
	if err != nil {
		return nil, err
	}
	if v != math.Trunc(v) {
		return nil, fmt.Errorf("%w: hsf %g is not an integer", constant.ErrProtocol, v)
	}
	return HeLevelStatus.Lookup(int(v))
}
