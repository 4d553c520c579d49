package vault

import (
	"encoding/json"
	"fmt"
)

// Serializer converts user values to and from the raw bytes that get
// encrypted. The store never inspects user types beyond this interface.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
}

// DefaultSerializer encodes strings as raw UTF-8 without a byte-order
// mark and byte slices as raw bytes. Any other type round-trips through
// JSON.
type DefaultSerializer struct{}

// Serialize implements Serializer.
func (DefaultSerializer) Serialize(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return append([]byte{}, t...), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("vault: failed to serialize value: %w", err)
		}
		return data, nil
	}
}

// Deserialize implements Serializer.
func (DefaultSerializer) Deserialize(data []byte, v any) error {
	switch t := v.(type) {
	case *string:
		*t = string(data)
		return nil
	case *[]byte:
		*t = append([]byte{}, data...)
		return nil
	default:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("vault: failed to deserialize value: %w", err)
		}
		return nil
	}
}
