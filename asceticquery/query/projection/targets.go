package projection

import (
	"github.com/go-viper/mapstructure/v2"
)

// RecordTarget collects fields into a map.
type RecordTarget map[string]any

func (r RecordTarget) Set(field string, value any) error {
	r[field] = value
	return nil
}

// StructTarget collects fields and decodes them into T once complete.
// Struct fields match by the "query" tag or, without one, by name.
type StructTarget[T any] struct {
	fields map[string]any
}

func NewStructTarget[T any]() Target {
	return &StructTarget[T]{fields: make(map[string]any)}
}

func (t *StructTarget[T]) Set(field string, value any) error {
	t.fields[field] = value
	return nil
}

func (t *StructTarget[T]) Finish() (any, error) {
	var result T
	if err := Decode(t.fields, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Decode copies a row-like map into the struct pointed to by out.
func Decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "query",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
