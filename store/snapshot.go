package store

import (
	"encoding/json"
	"reflect"
	"time"
)

// Snapshot is the durable form of one instance's state.
type Snapshot struct {
	Key       string    `json:"key"`
	Component string    `json:"component"`
	Data      []byte    `json:"data"`
	StoredAt  time.Time `json:"stored_at"`
}

// Codec converts instance state to and from snapshot data.
//
// Contract:
// - Decode receives the pooled instance's current state as a type hint and
//   returns the state to install. It must not merge data into current.
type Codec interface {
	Encode(state any) ([]byte, error)
	Decode(data []byte, current any) (any, error)
}

// JSONCodec encodes state with encoding/json. Decode allocates a new value
// of current's type when current is a non-nil pointer and otherwise decodes
// into a generic value.
type JSONCodec struct{}

// Encode implements Codec.
func (JSONCodec) Encode(state any) ([]byte, error) {
	return json.Marshal(state)
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte, current any) (any, error) {
	if current != nil {
		if v := reflect.ValueOf(current); v.Kind() == reflect.Pointer && !v.IsNil() {
			fresh := reflect.New(v.Type().Elem()).Interface()
			if err := json.Unmarshal(data, fresh); err != nil {
				return nil, err
			}
			return fresh, nil
		}
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Codec = JSONCodec{}
