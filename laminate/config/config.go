// Package config loads laminate settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TheusHen/laminate/laminate"
	"github.com/TheusHen/laminate/laminate/blockcipher"
	"github.com/TheusHen/laminate/laminate/compress"
	"github.com/TheusHen/laminate/laminate/schedule"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalid = errors.New("config: invalid configuration")
	ErrNoKey   = errors.New("config: no key configured")
)

// Config is the resolved configuration.
type Config struct {
	Cipher  CipherConfig
	Key     KeyConfig
	Service ServiceConfig
	Log     LogConfig
}

type CipherConfig struct {
	Layers      int
	Algorithm   string
	Scheduler   string
	Compression string
	// RandomSalt makes every encryption unlinkable at the cost of determinism.
	RandomSalt bool
}

type KeyConfig struct {
	// Env names the environment variable holding the key.
	Env  string
	File string
}

type ServiceConfig struct {
	Listen      string
	Metrics     string
	RateLimit   RateLimitConfig
	IdleTimeout time.Duration
	MaxStreams  int
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type LogConfig struct {
	Level  string
	Format string
}

func Default() Config {
	return Config{
		Cipher: CipherConfig{
			Layers:    laminate.DefaultLayers,
			Algorithm: laminate.DefaultAlgorithm,
			Scheduler: schedule.MutationName,
		},
		Key: KeyConfig{Env: "LAMINATE_KEY"},
		Service: ServiceConfig{
			Listen:      "127.0.0.1:7443",
			IdleTimeout: 30 * time.Second,
			MaxStreams:  8,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// FileConfig mirrors the YAML file. Pointers distinguish unset from zero.
type FileConfig struct {
	Cipher struct {
		Layers      int    `yaml:"layers"`
		Algorithm   string `yaml:"algorithm"`
		Scheduler   string `yaml:"scheduler"`
		Compression string `yaml:"compression"`
		RandomSalt  *bool  `yaml:"randomSalt"`
	} `yaml:"cipher"`
	Key struct {
		Env  string `yaml:"env"`
		File string `yaml:"file"`
	} `yaml:"key"`
	Service struct {
		Listen    string `yaml:"listen"`
		Metrics   string `yaml:"metrics"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rateLimit"`
		IdleTimeout time.Duration `yaml:"idleTimeout"`
		MaxStreams  int           `yaml:"maxStreams"`
	} `yaml:"service"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultPaths are tried in order when Load is given no path.
var DefaultPaths = []string{"laminate.yaml", "configs/laminate.yaml"}

// Load returns defaults, merged with the YAML file at path (or the first of
// DefaultPaths that exists), then environment overrides. An explicit path
// that cannot be read is an error; missing default paths are not.
func Load(path string) (Config, error) {
	cfg := Default()

	candidates := DefaultPaths
	if path != "" {
		candidates = []string{path}
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if path != "" {
				return Config{}, fmt.Errorf("config: read %s: %w", p, err)
			}
			continue
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", p, err)
		}
		Merge(&cfg, parsed)
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge copies every set field of src into dst.
func Merge(dst *Config, src FileConfig) {
	if src.Cipher.Layers != 0 {
		dst.Cipher.Layers = src.Cipher.Layers
	}
	if src.Cipher.Algorithm != "" {
		dst.Cipher.Algorithm = src.Cipher.Algorithm
	}
	if src.Cipher.Scheduler != "" {
		dst.Cipher.Scheduler = src.Cipher.Scheduler
	}
	if src.Cipher.Compression != "" {
		dst.Cipher.Compression = src.Cipher.Compression
	}
	if src.Cipher.RandomSalt != nil {
		dst.Cipher.RandomSalt = *src.Cipher.RandomSalt
	}
	if src.Key.Env != "" {
		dst.Key.Env = src.Key.Env
	}
	if src.Key.File != "" {
		dst.Key.File = src.Key.File
	}
	if src.Service.Listen != "" {
		dst.Service.Listen = src.Service.Listen
	}
	if src.Service.Metrics != "" {
		dst.Service.Metrics = src.Service.Metrics
	}
	if src.Service.RateLimit.RPS != 0 {
		dst.Service.RateLimit.RPS = src.Service.RateLimit.RPS
	}
	if src.Service.RateLimit.Burst != 0 {
		dst.Service.RateLimit.Burst = src.Service.RateLimit.Burst
	}
	if src.Service.IdleTimeout != 0 {
		dst.Service.IdleTimeout = src.Service.IdleTimeout
	}
	if src.Service.MaxStreams != 0 {
		dst.Service.MaxStreams = src.Service.MaxStreams
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
}

// ApplyEnvOverrides applies LAMINATE_* variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv("LAMINATE_LAYERS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: LAMINATE_LAYERS=%q", ErrInvalid, raw)
		}
		cfg.Cipher.Layers = n
	}
	if v := strings.TrimSpace(os.Getenv("LAMINATE_SCHEDULER")); v != "" {
		cfg.Cipher.Scheduler = v
	}
	if v := strings.TrimSpace(os.Getenv("LAMINATE_LISTEN")); v != "" {
		cfg.Service.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("LAMINATE_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LAMINATE_KEY_FILE")); v != "" {
		cfg.Key.File = v
	}
	return nil
}

// Validate checks everything that would otherwise fail later at startup.
func (c Config) Validate() error {
	if err := schedule.CheckAlgorithm(c.Cipher.Algorithm); err != nil {
		return err
	}
	if a := strings.ToLower(c.Cipher.Algorithm); a != "" && a != laminate.DefaultAlgorithm {
		return fmt.Errorf("%w: %q", laminate.ErrUnsupportedAlgorithm, c.Cipher.Algorithm)
	}
	if _, err := schedule.Lookup(c.Cipher.Scheduler, c.Cipher.Algorithm); err != nil {
		return err
	}
	if _, err := compress.ParseLevel(c.Cipher.Compression); err != nil {
		return err
	}
	if c.Service.Listen == "" {
		return fmt.Errorf("%w: service.listen is empty", ErrInvalid)
	}
	if c.Service.RateLimit.RPS < 0 || c.Service.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalid)
	}
	if c.Service.IdleTimeout < 0 || c.Service.MaxStreams < 0 {
		return fmt.Errorf("%w: negative service limits", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// CipherConfig returns the laminate.Config for key.
func (c Config) CipherConfig(key any) laminate.Config {
	return laminate.Config{Key: key, Algorithm: c.Cipher.Algorithm, Layers: c.Cipher.Layers}
}

// CipherOptions translates the cipher section into laminate options.
func (c Config) CipherOptions() ([]laminate.Option, error) {
	s, err := schedule.Lookup(c.Cipher.Scheduler, c.Cipher.Algorithm)
	if err != nil {
		return nil, err
	}
	level, err := compress.ParseLevel(c.Cipher.Compression)
	if err != nil {
		return nil, err
	}
	opts := []laminate.Option{laminate.WithScheduler(s), laminate.WithCompression(level)}
	if c.Cipher.RandomSalt {
		opts = append(opts, laminate.WithBlockCipher(blockcipher.NewOpenSSL(blockcipher.WithRandomSalt())))
	}
	return opts, nil
}

// ResolveKey reads the key from Key.File, or else from the Key.Env variable.
// A single trailing newline in the file is ignored.
func (c Config) ResolveKey() (string, error) {
	if c.Key.File != "" {
		data, err := os.ReadFile(c.Key.File)
		if err != nil {
			return "", fmt.Errorf("config: read key file: %w", err)
		}
		key := strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r")
		if key == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrNoKey, c.Key.File)
		}
		return key, nil
	}
	if c.Key.Env != "" {
		if v := os.Getenv(c.Key.Env); v != "" {
			return v, nil
		}
	}
	return "", ErrNoKey
}
