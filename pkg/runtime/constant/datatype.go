package constant

import (
	"encoding/json"
	"fmt"
)

// DataKind names the family of a parameter datatype.
type DataKind int8

const (
	DOUBLE DataKind = iota
	INT
	ENUM
	BOOL
	STRING
	STRUCT
	STATUS
)

var DataKindToString = map[DataKind]string{
	DOUBLE: "double",
	INT:    "int",
	ENUM:   "enum",
	BOOL:   "bool",
	STRING: "string",
	STRUCT: "struct",
	STATUS: "status",
}

var StringToDataKind = map[string]DataKind{
	"double": DOUBLE,
	"int":    INT,
	"enum":   ENUM,
	"bool":   BOOL,
	"string": STRING,
	"struct": STRUCT,
	"status": STATUS,
}

func (dk DataKind) String() string {
	return DataKindToString[dk]
}

func (dk DataKind) MarshalJSON() ([]byte, error) {
	if s, ok := DataKindToString[dk]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown data kind %d", dk)
}

func (dk *DataKind) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}

	v, ok := StringToDataKind[s]
	if !ok {
		return fmt.Errorf("unknown data kind %s", s)
	}
	*dk = v
	return nil
}
