package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/instancecache/secret"
	"github.com/jonwraymond/instancecache/txn"
)

// DefaultEnvPrefix prefixes environment variable overrides.
const DefaultEnvPrefix = "INSTANCECACHE_"

// Option configures Load.
type Option func(*loader)

type loader struct {
	file     string
	prefix   string
	resolver *secret.Resolver
}

// WithFile layers the YAML file at path over the defaults.
func WithFile(path string) Option {
	return func(l *loader) { l.file = path }
}

// WithEnvPrefix changes the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) { l.prefix = prefix }
}

// WithResolver replaces the default secret resolver.
func WithResolver(r *secret.Resolver) Option {
	return func(l *loader) { l.resolver = r }
}

// Load builds a validated Config from defaults, the optional file and the
// environment.
func Load(ctx context.Context, opts ...Option) (*Config, error) {
	l := &loader{prefix: DefaultEnvPrefix, resolver: secret.Default()}
	for _, opt := range opts {
		opt(l)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("%w: defaults: %w", ErrLoad, err)
	}
	if l.file != "" {
		data, err := readYAML(l.file)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawMap(data), nil); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoad, l.file, err)
		}
	}
	if err := k.Load(env.Provider(".", env.Opt{Prefix: l.prefix, TransformFunc: l.envKey}), nil); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", ErrLoad, err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrLoad, err)
	}

	if err := l.resolver.ResolveFields(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps INSTANCECACHE_STORE__REDIS__ADDR to store.redis.addr.
func (l *loader) envKey(key, value string) (string, any) {
	key = strings.TrimPrefix(key, l.prefix)
	if key == "" {
		return "", nil
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", "."), value
}

func readYAML(path string) (map[string]any, error) {
	// #nosec G304 -- the path comes from the operator.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrLoad, path, err)
	}
	return dropNil(out), nil
}

// dropNil removes null YAML values so they do not clear defaults.
func dropNil(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case nil:
		case map[string]any:
			if nested := dropNil(vv); len(nested) > 0 {
				out[k] = nested
			}
		default:
			out[k] = v
		}
	}
	return out
}

type rawMap map[string]any

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: raw map provider does not support ReadBytes")
}

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := txn.ParseCommitOption(cfg.Txn.CommitOption); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
