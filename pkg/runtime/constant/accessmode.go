package constant

import (
	"encoding/json"
	"fmt"
)

// AccessMode of a parameter. The zero value is readonly.
type AccessMode int8

const (
	AccessModeReadOnly AccessMode = iota
	AccessModeReadWrite
)

var ReadWritePropertyToString = map[AccessMode]string{
	AccessModeReadOnly:  "r",
	AccessModeReadWrite: "rw",
}

var StringToReadWriteProperty = map[string]AccessMode{
	"r":  AccessModeReadOnly,
	"rw": AccessModeReadWrite,
}

func (am AccessMode) Readonly() bool {
	return am == AccessModeReadOnly
}

func (am AccessMode) String() string {
	return ReadWritePropertyToString[am]
}

func (am AccessMode) MarshalJSON() ([]byte, error) {
	if s, ok := ReadWritePropertyToString[am]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown accessMode %d", am)
}

func (am *AccessMode) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}

	v, ok := StringToReadWriteProperty[s]
	if !ok {
		return fmt.Errorf("unknown accessMode %s", s)
	}
	*am = v
	return nil
}
