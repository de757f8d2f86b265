package specification

import (
	"strings"

	"github.com/spf13/cast"
)

// ToBool accepts the boolean-like literals SPECIFIED takes: true/false,
// 1/0, yes/no, y/n, on/off.
func ToBool(v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "on":
			return true, nil
		case "no", "n", "off":
			return false, nil
		}
	}
	return cast.ToBoolE(v)
}
