package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cast"

	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

type timer interface {
	Time() time.Time
}

// Convert coerces value to the declared type. Nil stays nil.
func Convert(path string, value any, t ScalarType) (any, error) {
	if value == nil {
		return nil, nil
	}
	result, err := convert(value, t)
	if err != nil {
		return nil, s.NewQueryError(s.ErrValueConversion, path, fmt.Sprintf("cannot convert to %s", t)).
			WithValue(value).
			WithCause(err)
	}
	return result, nil
}

func convert(value any, t ScalarType) (any, error) {
	switch t {
	case TypeString:
		return cast.ToStringE(value)
	case TypeInt:
		if f, ok := value.(float64); ok && f != float64(int64(f)) {
			return nil, fmt.Errorf("%v is not integral", f)
		}
		return cast.ToInt64E(value)
	case TypeFloat:
		return cast.ToFloat64E(value)
	case TypeBool:
		return s.ToBool(value)
	case TypeTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case timer:
			return v.Time(), nil
		}
		return cast.ToTimeE(value)
	case TypeUUID:
		switch v := value.(type) {
		case uuid.UUID:
			return v, nil
		case [16]byte:
			return uuid.UUID(v), nil
		case []byte:
			return uuid.FromBytes(v)
		case string:
			return uuid.Parse(v)
		}
		return nil, fmt.Errorf("unsupported uuid source %T", value)
	case TypeULID:
		switch v := value.(type) {
		case ulid.ULID:
			return v, nil
		case [16]byte:
			return ulid.ULID(v), nil
		case string:
			return ulid.ParseStrict(v)
		}
		return nil, fmt.Errorf("unsupported ulid source %T", value)
	case TypeObject:
		return value, nil
	}
	return normalizeAny(value), nil
}

// normalizeAny widens integers to int64 so untyped values from different
// drivers compare equal.
func normalizeAny(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	case timer:
		return v.Time()
	}
	return value
}
