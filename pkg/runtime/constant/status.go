package constant

import (
	"encoding/json"
	"fmt"
)

// StatusCode is the standardized operational state every module reports.
// The numeric values group codes by severity.
type StatusCode int

const (
	DISABLED StatusCode = 0
	IDLE     StatusCode = 100
	WARN     StatusCode = 200
	BUSY     StatusCode = 300
	ERROR    StatusCode = 400
)

var StatusCodeToString = map[StatusCode]string{
	DISABLED: "DISABLED",
	IDLE:     "IDLE",
	WARN:     "WARN",
	BUSY:     "BUSY",
	ERROR:    "ERROR",
}

var StringToStatusCode = map[string]StatusCode{
	"DISABLED": DISABLED,
	"IDLE":     IDLE,
	"WARN":     WARN,
	"BUSY":     BUSY,
	"ERROR":    ERROR,
}

func (sc StatusCode) Valid() bool {
	_, ok := StatusCodeToString[sc]
	return ok
}

func (sc StatusCode) String() string {
	if s, ok := StatusCodeToString[sc]; ok {
		return s
	}
	return fmt.Sprintf("StatusCode(%d)", int(sc))
}

func (sc StatusCode) MarshalJSON() ([]byte, error) {
	if s, ok := StatusCodeToString[sc]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown status code %d", sc)
}

func (sc *StatusCode) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		var n int
		if json.Unmarshal(bytes, &n) != nil {
			return err
		}
		if !StatusCode(n).Valid() {
			return fmt.Errorf("unknown status code %d", n)
		}
		*sc = StatusCode(n)
		return nil
	}

	v, ok := StringToStatusCode[s]
	if !ok {
		return fmt.Errorf("unknown status code %s", s)
	}
	*sc = v
	return nil
}

// UpdatePolicy controls whether a cache update that leaves the value
// unchanged still emits a change event.
type UpdatePolicy int8

const (
	UpdateOnChange UpdatePolicy = iota
	UpdateAlways
	UpdateNever
)

var UpdatePolicyToString = map[UpdatePolicy]string{
	UpdateOnChange: "default",
	UpdateAlways:   "always",
	UpdateNever:    "never",
}

var StringToUpdatePolicy = map[string]UpdatePolicy{
	"default": UpdateOnChange,
	"always":  UpdateAlways,
	"never":   UpdateNever,
}

func (up UpdatePolicy) MarshalJSON() ([]byte, error) {
	if s, ok := UpdatePolicyToString[up]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown update policy %d", up)
}
