package perennial

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"
)

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// bigFromAny reads subgraph BigInt values, which arrive as decimal strings,
// plus plain JSON numbers.
func bigFromAny(v any) (*big.Int, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, false
		}
		out, ok := new(big.Int).SetString(s, 10)
		return out, ok
	case json.Number:
		out, ok := new(big.Int).SetString(val.String(), 10)
		return out, ok
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) || val != math.Trunc(val) {
			return nil, false
		}
		out, _ := big.NewFloat(val).Int(nil)
		return out, true
	case int:
		return big.NewInt(int64(val)), true
	case int64:
		return big.NewInt(val), true
	default:
		return nil, false
	}
}

func intFromAny(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		return i, err == nil
	default:
		return 0, false
	}
}

func boolFromAny(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(val))
		return b
	default:
		return false
	}
}
