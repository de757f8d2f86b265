package schema

import "strings"

type ScalarType string

const (
	TypeAny    ScalarType = "any"
	TypeString ScalarType = "string"
	TypeInt    ScalarType = "int"
	TypeFloat  ScalarType = "float"
	TypeBool   ScalarType = "bool"
	TypeTime   ScalarType = "time"
	TypeUUID   ScalarType = "uuid"
	TypeULID   ScalarType = "ulid"
	TypeObject ScalarType = "object"
)

var scalarAliases = map[string]ScalarType{
	"any":       TypeAny,
	"string":    TypeString,
	"text":      TypeString,
	"int":       TypeInt,
	"integer":   TypeInt,
	"long":      TypeInt,
	"float":     TypeFloat,
	"double":    TypeFloat,
	"decimal":   TypeFloat,
	"bool":      TypeBool,
	"boolean":   TypeBool,
	"time":      TypeTime,
	"timestamp": TypeTime,
	"date":      TypeTime,
	"uuid":      TypeUUID,
	"ulid":      TypeULID,
	"object":    TypeObject,
	"embedded":  TypeObject,
}

func ParseScalarType(raw string) (ScalarType, bool) {
	t, ok := scalarAliases[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

func (t ScalarType) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat || t == TypeAny
}

// IsOrderable reports whether Min/Max and range comparisons make sense.
func (t ScalarType) IsOrderable() bool {
	switch t {
	case TypeInt, TypeFloat, TypeString, TypeTime, TypeULID, TypeAny:
		return true
	}
	return false
}

func (t ScalarType) IsString() bool {
	return t == TypeString || t == TypeAny
}

func (t ScalarType) String() string {
	return string(t)
}
