package runtime

import (
	"context"
	"harnsnode/pkg/datatype"
	"harnsnode/pkg/runtime/constant"
	"time"
)

type LabeledCloser struct {
	Label  string
	Closer func(context.Context) error
}

type ObjectMeta struct {
	Name    string    `json:"name"`
	ID      string    `json:"id"`
	Version string    `json:"eTag"`
	ModTime time.Time `json:"modTime"`
}

// ModuleDescriptor is what configuration supplies to construct a module.
type ModuleDescriptor struct {
	Name        string                 `json:"name"`
	Class       string                 `json:"class"`
	Description string                 `json:"description,omitempty"`
	URI         string                 `json:"uri,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type ModuleMeta struct {
	Name        string   `json:"name"`
	Class       string   `json:"class"`
	Description string   `json:"description"`
	URI         string   `json:"uri,omitempty"`
	LinkState   string   `json:"linkState,omitempty"`
	Parameters  []string `json:"parameters"`
}

type ParameterMeta struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	DataType    datatype.Description  `json:"datatype"`
	Readonly    bool                  `json:"readonly"`
	Export      bool                  `json:"export"`
	Unit        string                `json:"unit,omitempty"`
	Group       string                `json:"group,omitempty"`
	Persistent  bool                  `json:"persistent,omitempty"`
	Update      constant.UpdatePolicy `json:"updateUnchanged"`
}

// ChangeEvent reports one accepted cache update.
type ChangeEvent struct {
	Module    string      `json:"module"`
	Parameter string      `json:"parameter"`
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
	// Internal parameters are only visible to in-process subscribers.
	Internal bool `json:"-"`
}

type PublishData struct {
	Payload Payload `json:"payload"`
}

type Payload struct {
	Data []TimeSeriesData `json:"data"`
}

type TimeSeriesData struct {
	Timestamp string      `json:"timestamp"`
	Values    []PointData `json:"values"`
}

type PointData struct {
	DataPointId string      `json:"dataPointId"`
	Value       interface{} `json:"value"`
}

// NewPublishData wraps an event into the payload published to brokers.
func NewPublishData(ev ChangeEvent) PublishData {
	return PublishData{Payload: Payload{Data: []TimeSeriesData{{
		Timestamp: ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		Values: []PointData{{
			DataPointId: ev.Module + "." + ev.Parameter,
			Value:       ev.Value,
		}},
	}}}}
}
