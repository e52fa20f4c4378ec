package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/TheusHen/laminate/laminate"
	"github.com/TheusHen/laminate/laminate/config"
	"github.com/TheusHen/laminate/laminate/logging"
	"golang.org/x/term"
)

// common holds the flags shared by every keyed command.
type common struct {
	configPath string
	keyFile    string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (default: laminate.yaml if present)")
	fs.StringVar(&c.keyFile, "key-file", "", "file holding the key (overrides config and LAMINATE_KEY)")
}

// runtime is everything a keyed command needs.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	cipher *laminate.Cipher
}

func (c *common) load(e *env) (*runtime, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.keyFile != "" {
		cfg.Key.File = c.keyFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(e.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	key, err := cfg.ResolveKey()
	if errors.Is(err, config.ErrNoKey) {
		key, err = promptKey(e)
	}
	if err != nil {
		return nil, err
	}

	opts, err := cfg.CipherOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, laminate.WithLogger(logger))
	lc, err := laminate.New(cfg.CipherConfig(key), opts...)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, cipher: lc}, nil
}

// promptKey reads the key from the terminal without echo. It only works when
// stdin is a terminal.
func promptKey(e *env) (string, error) {
	f, ok := e.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", config.ErrNoKey
	}
	fmt.Fprint(e.stderr, "key: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(e.stderr)
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	if len(b) == 0 {
		return "", config.ErrNoKey
	}
	return string(b), nil
}

// parseShardLayout parses "d+p", e.g. "4+2".
func parseShardLayout(s string) (data, parity int, err error) {
	d, p, ok := strings.Cut(s, "+")
	if !ok {
		return 0, 0, fmt.Errorf("shards %q: want data+parity", s)
	}
	if data, err = strconv.Atoi(d); err != nil {
		return 0, 0, fmt.Errorf("shards %q: %w", s, err)
	}
	if parity, err = strconv.Atoi(p); err != nil {
		return 0, 0, fmt.Errorf("shards %q: %w", s, err)
	}
	return data, parity, nil
}

func readInput(e *env, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(e.stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(e *env, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := e.stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
