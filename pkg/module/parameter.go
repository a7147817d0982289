package module

import (
	"harnsnode/pkg/datatype"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/runtime/constant"
	"math"
	"time"
)

// Standard parameter names.
const (
	ParamValue        = "value"
	ParamStatus       = "status"
	ParamTarget       = "target"
	ParamPollInterval = "pollinterval"
)

const DefaultPollInterval = 5.0

// Parameter is the declaration of a parameter, shared by all modules of a class.
type Parameter struct {
	Name        string
	Description string
	DataType    datatype.DataType
	// Access defaults to readonly.
	Access constant.AccessMode
	// Internal parameters are hidden from the external interface.
	Internal   bool
	Persistent bool
	Update     constant.UpdatePolicy
	Group      string
	// Default, if set, is cached when the module is built.
	Default interface{}
}

func (p *Parameter) Readonly() bool {
	return p.Access.Readonly()
}

func (p *Parameter) Exported() bool {
	return !p.Internal
}

func (p *Parameter) Meta() runtime.ParameterMeta {
	return runtime.ParameterMeta{
		Name:        p.Name,
		Description: p.Description,
		DataType:    p.DataType.Describe(),
		Readonly:    p.Readonly(),
		Export:      p.Exported(),
		Unit:        p.DataType.Unit(),
		Group:       p.Group,
		Persistent:  p.Persistent,
		Update:      p.Update,
	}
}

// Value is a cached value with the time it was accepted.
type Value struct {
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}

func ValueParameter(description string, dt datatype.DataType) *Parameter {
	return &Parameter{Name: ParamValue, Description: description, DataType: dt}
}

func TargetParameter(description string, dt datatype.DataType) *Parameter {
	return &Parameter{Name: ParamTarget, Description: description, DataType: dt, Access: constant.AccessModeReadWrite}
}

func StatusParameter(codes ...constant.StatusCode) *Parameter {
	return &Parameter{Name: ParamStatus, Description: "current status of the module", DataType: datatype.NewStatusType(codes...)}
}

func PollIntervalParameter() *Parameter {
	return &Parameter{
		Name:        ParamPollInterval,
		Description: "polling interval",
		DataType:    datatype.NewFloatRange(0.1, 120, datatype.WithUnit("s")),
		Access:      constant.AccessModeReadWrite,
		Default:     DefaultPollInterval,
		Group:       "polling",
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(math.Round(f * float64(time.Second)))
}
