package secret

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${REDIS_HOST}:6379", "cache.internal:6379"},
		{"$REDIS_HOST", "cache.internal"},
		{"pa$$word", "pa$word"},
		{"$$${REDIS_HOST}", "$cache.internal"},
		{"x${EMPTY}y", "xy"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		got, err := ExpandEnvStrict(tt.in)
		if err != nil {
			t.Errorf("ExpandEnvStrict(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandEnvStrict(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnvStrict_MissingBraced(t *testing.T) {
	_, err := ExpandEnvStrict("${ZZ_MISSING_B}/${ZZ_MISSING_A}/${ZZ_MISSING_A}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("ExpandEnvStrict() error = %v, want ErrMissingEnv", err)
	}
	if !strings.HasSuffix(err.Error(), "ZZ_MISSING_A, ZZ_MISSING_B") {
		t.Errorf("error = %q, want sorted unique names", err)
	}
}
