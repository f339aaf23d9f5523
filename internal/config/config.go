// Package config merges barsync settings from defaults, a YAML file, an
// optional .env file and the environment, and validates the result against
// an embedded CUE schema. Command-line flags are applied by the CLI on top.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lorenzobigazzi0/app/internal/fanout"
	"github.com/lorenzobigazzi0/app/internal/realtime"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BARSYNC_"

// Config is the merged configuration.
type Config struct {
	Server          string        `yaml:"server" json:"server"`
	Channel         string        `yaml:"channel" json:"channel"`
	Token           string        `yaml:"token" json:"token"`
	Station         string        `yaml:"station" json:"station"`
	Mirror          string        `yaml:"mirror" json:"mirror"`
	Listen          string        `yaml:"listen" json:"listen"`
	Kafka           Kafka         `yaml:"kafka" json:"kafka"`
	PingInterval    time.Duration `yaml:"ping_interval" json:"ping_interval"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
}

// Kafka configures the status fan-out. No brokers disables it.
type Kafka struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

// Enabled reports whether any broker is configured.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Server:         "http://localhost:8000",
		Channel:        string(realtime.ChannelBar),
		Station:        "BAR",
		Listen:         ":8090",
		Kafka:          Kafka{Topic: fanout.DefaultTopic},
		PingInterval:   realtime.DefaultPingInterval,
		ReconnectDelay: realtime.DefaultReconnectDelay,
	}
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is a YAML config file. Empty skips it; a missing named file is
	// an error.
	File string
	// EnvFile is a dotenv file. Empty means ".env" when it exists.
	EnvFile string
	// Getenv reads the process environment. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load merges every source in precedence order. The result is not
// validated so that flags can still be applied; call Validate afterwards.
func Load(opts LoadOptions) (Config, error) {
	cfg := Defaults()

	if opts.File != "" {
		f, err := os.Open(opts.File)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", opts.File, err)
		}
	}

	dotenv, err := readDotenv(opts.EnvFile)
	if err != nil {
		return Config{}, err
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(key string) string {
		if v := getenv(EnvPrefix + key); v != "" {
			return v
		}
		return dotenv[EnvPrefix+key]
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("env file: %w", err)
	}
	// Read rather than Load: the process environment stays untouched.
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	return env, nil
}

func (c *Config) applyEnv(lookup func(string) string) error {
	strs := map[string]*string{
		"SERVER":      &c.Server,
		"CHANNEL":     &c.Channel,
		"TOKEN":       &c.Token,
		"STATION":     &c.Station,
		"MIRROR":      &c.Mirror,
		"LISTEN":      &c.Listen,
		"KAFKA_TOPIC": &c.Kafka.Topic,
	}
	for key, dst := range strs {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}

	durs := map[string]*time.Duration{
		"PING_INTERVAL":    &c.PingInterval,
		"RECONNECT_DELAY":  &c.ReconnectDelay,
		"REFRESH_INTERVAL": &c.RefreshInterval,
	}
	for key, dst := range durs {
		v := lookup(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	if v := lookup("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found by Validate.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	brokers := c.Kafka.Brokers
	if brokers == nil {
		brokers = []string{}
	}
	doc := map[string]any{
		"server":  c.Server,
		"channel": c.Channel,
		"token":   c.Token,
		"station": c.Station,
		"mirror":  c.Mirror,
		"listen":  c.Listen,
		"kafka": map[string]any{
			"brokers": brokers,
			"topic":   c.Kafka.Topic,
		},
		"ping_interval_ms":    c.PingInterval.Milliseconds(),
		"reconnect_delay_ms":  c.ReconnectDelay.Milliseconds(),
		"refresh_interval_ms": c.RefreshInterval.Milliseconds(),
	}

	v := def.Unify(ctx.Encode(doc))
	err := v.Validate(cue.Concrete(true), cue.All())
	if err == nil {
		return nil
	}

	verr := &ValidationError{}
	seen := map[string]bool{}
	for _, e := range cueerrors.Errors(err) {
		field := strings.Join(e.Path(), ".")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if seen[field+msg] {
			continue
		}
		seen[field+msg] = true
		verr.Fields = append(verr.Fields, FieldError{Field: field, Message: msg})
	}
	return verr
}

// Write renders c as YAML, as accepted by Load.
func (c Config) Write(w io.Writer) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
