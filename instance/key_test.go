package instance

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want error
	}{
		{"valid", "order:42", nil},
		{"empty", "", ErrInvalidKey},
		{"whitespace", "   ", ErrInvalidKey},
		{"newline", "a\nb", ErrInvalidKey},
		{"too long", strings.Repeat("k", MaxKeyLength+1), ErrKeyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateKey(tt.key); !errors.Is(err, tt.want) {
				t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.want)
			}
		})
	}
}

func TestKeyer_Scalars(t *testing.T) {
	keyer := NewDefaultKeyer()

	key, err := keyer.Key("order", "A-17")
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key != "order:A-17" {
		t.Errorf("Key() = %q, want order:A-17", key)
	}

	key, err = keyer.Key("order", int64(42))
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key != "order:42" {
		t.Errorf("Key() = %q, want order:42", key)
	}
}

func TestKeyer_DeterministicForCompositeKeys(t *testing.T) {
	keyer := NewDefaultKeyer()

	pk1 := map[string]any{"tenant": "acme", "id": 7, "region": "eu"}
	pk2 := map[string]any{"region": "eu", "id": 7, "tenant": "acme"}

	key1, err := keyer.Key("account", pk1)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key("account", pk2)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 != key2 {
		t.Errorf("keys differ for equal composite keys:\n  key1=%s\n  key2=%s", key1, key2)
	}
	if !strings.HasPrefix(key1, "account:#") {
		t.Errorf("Key() = %q, want account:# prefix", key1)
	}
}

func TestKeyer_SliceOrderMatters(t *testing.T) {
	keyer := NewDefaultKeyer()

	key1, _ := keyer.Key("line", []any{1, 2})
	key2, _ := keyer.Key("line", []any{2, 1})
	if key1 == key2 {
		t.Errorf("keys should differ for different slice order: %s", key1)
	}
}

func TestKeyer_RequiresComponent(t *testing.T) {
	keyer := NewDefaultKeyer()
	if _, err := keyer.Key(" ", "x"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Key() error = %v, want ErrInvalidKey", err)
	}
}
