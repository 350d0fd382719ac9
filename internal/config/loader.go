package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Struct tags read by the loader:
//
//	env       primary variable name
//	envAlt    fallback variable name
//	default   value used when neither variable is set
//	required  "true" fails the load when the value is missing
//	unit      "bytes" accepts sizes such as 512KB or 10MB

// Load reads the configuration from the environment, applies defaults and
// validates the result. Every bad variable is reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}

	var errs fieldErrors
	loadStruct(reflect.ValueOf(cfg).Elem(), &errs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config load: %w", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// fieldErrors collects per-variable failures.
type fieldErrors []string

func (e fieldErrors) Error() string {
	return strings.Join(e, "; ")
}

func lookupEnv(names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// loadStruct fills the tagged fields of v, descending into nested sections.
func loadStruct(v reflect.Value, errs *fieldErrors) {
	t := v.Type()
	for i := range t.NumField() {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			loadStruct(fv, errs)
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		raw := lookupEnv(name, field.Tag.Get("envAlt"))
		if raw == "" {
			if field.Tag.Get("required") == "true" {
				*errs = append(*errs, fmt.Sprintf("%s is required", name))
				continue
			}
			raw = field.Tag.Get("default")
		}
		if raw == "" {
			continue
		}

		if err := setField(fv, raw, field.Tag.Get("unit")); err != nil {
			*errs = append(*errs, fmt.Sprintf("%s=%q: %v", name, raw, err))
		}
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(fv reflect.Value, raw, unit string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))

	case fv.Kind() == reflect.Int || fv.Kind() == reflect.Int64:
		parse := parseInt
		if unit == "bytes" {
			parse = parseByteSize
		}
		n, err := parse(raw)
		if err != nil {
			return err
		}
		fv.SetInt(n)

	case fv.Kind() == reflect.String:
		fv.SetString(raw)

	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)

	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		fv.Set(reflect.ValueOf(splitList(raw)))

	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

func parseInt(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return n, nil
}

var byteUnits = []struct {
	suffix string
	factor int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseByteSize accepts a plain byte count or a KB/MB/GB suffixed size.
func parseByteSize(raw string) (int64, error) {
	s := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
	for _, u := range byteUnits {
		if num, ok := strings.CutSuffix(s, u.suffix); ok {
			n, err := strconv.ParseInt(num, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size: %q", raw)
			}
			return n * u.factor, nil
		}
	}
	return parseInt(s)
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// checks accumulates validation failures.
type checks []string

func (c *checks) failf(format string, args ...any) {
	*c = append(*c, fmt.Sprintf(format, args...))
}

func (c *checks) positive(name string, v int64) {
	if v <= 0 {
		c.failf("%s must be positive", name)
	}
}

func (c *checks) oneOf(name, v string, allowed ...string) {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return
		}
	}
	c.failf("%s (%q) must be one of: %s", name, v, strings.Join(allowed, ", "))
}

// Validate checks the loaded configuration and reports every failure at once.
func (c *Config) Validate() error {
	var ck checks

	if c.Database.URL == "" {
		ck.failf("DATABASE_URL is required")
	}
	ck.positive("DB_MAX_CONNS", int64(c.Database.MaxConns))
	if c.Database.MinConns < 0 {
		ck.failf("DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		ck.failf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		ck.failf("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	ck.positive("SERVER_SHUTDOWN_TIMEOUT", int64(c.Server.ShutdownTimeout))

	ck.positive("UPLOAD_MAX_FILE_SIZE", c.Upload.MaxFileSize)
	ck.positive("UPLOAD_PREVIEW_MAX_FILE_SIZE", c.Upload.PreviewMaxFileSize)
	ck.positive("UPLOAD_MAX_CONCURRENT", int64(c.Upload.MaxConcurrent))
	ck.positive("UPLOAD_MAX_WAIT_TIME", int64(c.Upload.MaxWaitTime))
	ck.positive("UPLOAD_TIMEOUT", int64(c.Upload.Timeout))

	ck.positive("INGEST_PREVIEW_LIMIT", int64(c.Ingest.PreviewLimit))

	if c.Redis.LockEnabled() && c.Redis.LockTTL <= 0 {
		ck.failf("REDIS_LOCK_TTL must be positive when REDIS_URL is set")
	}

	if c.Rate.Enabled {
		ck.positive("RATE_LIMIT_REQUESTS_PER_MINUTE", int64(c.Rate.RequestsPerMinute))
		ck.positive("RATE_LIMIT_UPLOAD", int64(c.Rate.UploadLimit))
	}

	if strings.TrimSpace(c.Security.TenantHeader) == "" {
		ck.failf("TENANT_HEADER must not be empty")
	}

	ck.oneOf("LOG_LEVEL", c.Logging.Level, "debug", "info", "warn", "error")
	ck.oneOf("LOG_FORMAT", c.Logging.Format, "text", "json")

	if len(ck) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(ck, "\n  - "))
	}
	return nil
}

// redactURL hides the credentials of a connection URL, keeping host and path.
func redactURL(raw string) string {
	if raw == "" {
		return "unset"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[MASKED]"
	}
	if u.User == nil {
		return u.Redacted()
	}
	u.User = nil
	return strings.Replace(u.String(), "://", "://[MASKED]@", 1)
}

// String renders the config for logging with credentials masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: {Addr: %q}, Database: {URL: %s, MaxConns: %d, MinConns: %d}, "+
			"Upload: {MaxFileSize: %d, PreviewMaxFileSize: %d, MaxConcurrent: %d}, "+
			"Ingest: {PreviewLimit: %d}, Redis: {URL: %s}, Rate: {Enabled: %t, PerMinute: %d, Upload: %d}, "+
			"Logging: {Level: %q, Format: %q}}",
		c.Server.Addr(), redactURL(c.Database.URL), c.Database.MaxConns, c.Database.MinConns,
		c.Upload.MaxFileSize, c.Upload.PreviewMaxFileSize, c.Upload.MaxConcurrent,
		c.Ingest.PreviewLimit, redactURL(c.Redis.URL),
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.UploadLimit,
		c.Logging.Level, c.Logging.Format,
	)
}
