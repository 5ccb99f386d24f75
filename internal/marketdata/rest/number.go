package rest

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Float parses the loosely typed numbers public APIs return: JSON numbers,
// numeric strings or json.Number.
func Float(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	case json.Number:
		return x.Float64()
	case nil:
		return 0, fmt.Errorf("missing number")
	}
	return 0, fmt.Errorf("unexpected number type %T", v)
}
