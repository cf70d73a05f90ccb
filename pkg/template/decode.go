package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var ErrTrailingData = errors.New("unexpected data after JSON value")

// Decode parses one JSON document into the plain shape the engine traverses.
// Numbers are kept as json.Number so that their text survives a round trip.
func Decode(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, err
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}

	return decoded, nil
}

// Float reads a JSON number held as json.Number, a float or an integer.
func Float(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int reads a JSON number that must be integral.
func Int(value any) (int64, error) {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}

		f, err := v.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("%s is not an integer", v)
		}

		return int64(f), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		f, ok := Float(value)
		if !ok || f != float64(int64(f)) {
			return 0, fmt.Errorf("%v is not an integer", value)
		}

		return int64(f), nil
	}
}
