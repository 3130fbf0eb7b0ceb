package instance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxKeyLength is the maximum allowed length for an instance key.
const MaxKeyLength = 512

// Key validation errors.
var (
	ErrInvalidKey = errors.New("instance: key is invalid")
	ErrKeyTooLong = errors.New("instance: key exceeds max length")
)

// ValidateKey checks if a key may be bound to an instance.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// Keyer derives instance keys from a component name and a primary key.
//
// Contract:
// - Determinism: equal primary keys produce equal instance keys, regardless
//   of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(component string, primaryKey any) (string, error)
}

// DefaultKeyer formats string and integer primary keys verbatim and hashes
// composite ones.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key returns "<component>:<pk>" for scalar primary keys and
// "<component>:#<hash>" for composite ones, where hash is the first 16 hex
// characters of SHA-256 over the canonical JSON form.
func (k *DefaultKeyer) Key(component string, primaryKey any) (string, error) {
	if strings.TrimSpace(component) == "" {
		return "", fmt.Errorf("instance: component is required: %w", ErrInvalidKey)
	}

	var key string
	switch pk := primaryKey.(type) {
	case string:
		key = component + ":" + pk
	case int, int32, int64, uint, uint32, uint64:
		key = fmt.Sprintf("%s:%d", component, pk)
	default:
		canonical, err := canonicalize(primaryKey)
		if err != nil {
			return "", fmt.Errorf("instance: failed to canonicalize primary key: %w", err)
		}
		sum := sha256.Sum256(canonical)
		key = component + ":#" + hex.EncodeToString(sum[:8])
	}

	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}
		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, ']'), nil
}

var _ Keyer = (*DefaultKeyer)(nil)
