package postgres

import (
	"database/sql/driver"
	"encoding/json"

	"finvisor/pkg/errors"
)

// jsonb maps a JSONB column onto T. NULL scans to the zero value and a value
// encoding to JSON null is stored as NULL.
type jsonb[T any] struct {
	V T
}

func (j jsonb[T]) Value() (driver.Value, error) {
	data, err := json.Marshal(j.V)
	if err != nil {
		return nil, errors.Wrap(err, "encode jsonb")
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func (j *jsonb[T]) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Newf("jsonb: unsupported source %T", src)
	}
	return errors.Wrap(json.Unmarshal(data, &j.V), "decode jsonb")
}

// stateColumn never encodes a nil map as JSON null
func stateColumn(state map[string]interface{}) jsonb[map[string]interface{}] {
	if state == nil {
		state = map[string]interface{}{}
	}
	return jsonb[map[string]interface{}]{V: state}
}
