package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := decodeEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// decoder parses one raw env value into a field of its type.
type decoder func(raw string) (reflect.Value, error)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	stringsType  = reflect.TypeOf([]string(nil))
)

// decoders by exact field type. Plain kinds are handled in decodeValue.
var decoders = map[reflect.Type]decoder{
	durationType: func(raw string) (reflect.Value, error) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid duration: %w", err)
		}
		return reflect.ValueOf(d), nil
	},
	stringsType: func(raw string) (reflect.Value, error) {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return reflect.ValueOf(out), nil
	},
}

// decodeEnv walks the struct and fills every field carrying an env tag.
// Nested structs are sections and are walked in turn.
func decodeEnv(v reflect.Value) error {
	t := v.Type()
	for i := range t.NumField() {
		field, dst := t.Field(i), v.Field(i)
		if !dst.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := decodeEnv(dst); err != nil {
				return err
			}
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, err := lookup(field.Tag)
		if err != nil {
			return err
		}
		if raw == "" {
			continue
		}
		if err := decodeValue(dst, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
	}
	return nil
}

// lookup resolves a field's raw value: env, then envAlt, then default.
func lookup(tag reflect.StructTag) (string, error) {
	name := tag.Get("env")
	if raw := os.Getenv(name); raw != "" {
		return raw, nil
	}
	if alt := tag.Get("envAlt"); alt != "" {
		if raw := os.Getenv(alt); raw != "" {
			return raw, nil
		}
	}
	if tag.Get("required") == "true" {
		return "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return tag.Get("default"), nil
}

func decodeValue(dst reflect.Value, raw string) error {
	if dec, ok := decoders[dst.Type()]; ok {
		val, err := dec(raw)
		if err != nil {
			return err
		}
		dst.Set(val)
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		dst.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		dst.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", dst.Type())
	}
	return nil
}

// normalize lowercases the enumerated settings so validation and callers
// compare against one spelling.
func (c *Config) normalize() {
	for _, s := range []*string{
		&c.Grid.ArrayFormat, &c.Grid.WidthStore, &c.Logging.Level, &c.Logging.Format,
	} {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
}

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

// envValidator reports field errors under their env variable names.
func envValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			return f.Tag.Get("env")
		})
		validateInst = v
	})
	return validateInst
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if err := envValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	// Rules spanning more than one field.
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	switch c.Grid.WidthStore {
	case WidthStoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, "GRID_WIDTH_STORE is redis but REDIS_URL is not set")
		}
	case WidthStorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, "GRID_WIDTH_STORE is postgres but DATABASE_URL is not set")
		}
	}
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// describe renders one field error as "ENV_NAME (value) must ...".
func describe(fe validator.FieldError) string {
	var rule string
	switch fe.Tag() {
	case "min", "gte":
		rule = "must be >= " + fe.Param()
	case "max", "lte":
		rule = "must be <= " + fe.Param()
	case "gt":
		rule = "must be > " + fe.Param()
	case "oneof":
		rule = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "required":
		return fe.Field() + " must not be empty"
	default:
		rule = "fails " + fe.Tag()
	}
	return fmt.Sprintf("%s (%v) %s", fe.Field(), fe.Value(), rule)
}

// String returns a safe string representation of the config for logging.
// Connection strings are masked.
func (c *Config) String() string {
	sections := []string{
		fmt.Sprintf("Server: {Addr: %q}", c.Server.Addr()),
		fmt.Sprintf("Database: {URL: %s, Conns: %d-%d}", mask(c.Database.URL), c.Database.MinConns, c.Database.MaxConns),
		fmt.Sprintf("Redis: {URL: %s}", mask(c.Redis.URL)),
		fmt.Sprintf("Grid: {PageSize: %d, ArrayFormat: %q, WidthStore: %q, Screens: %q}",
			c.Grid.DefaultPageSize, c.Grid.ArrayFormat, c.Grid.WidthStore, c.Grid.ScreensFile),
		fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}", c.Rate.Enabled, c.Rate.RequestsPerMinute),
		fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format),
	}
	return "Config{" + strings.Join(sections, ", ") + "}"
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
