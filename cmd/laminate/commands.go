package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TheusHen/laminate/laminate"
	"github.com/TheusHen/laminate/laminate/armor"
	"github.com/TheusHen/laminate/laminate/keymaterial"
	"github.com/TheusHen/laminate/laminate/service"
	"github.com/TheusHen/laminate/laminate/transport/quic"
	"github.com/docker/go-units"
)

const limiterIdleTTL = 10 * time.Minute

func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func runKeygen(e *env, args []string) error {
	fs := newFlagSet(e, "keygen")
	length := fs.Int("length", 32, "key length in characters, even and at least 8 (rounded up to a power of two)")
	mnemonic := fs.Bool("mnemonic", false, "derive the key from a fresh 24-word recovery phrase")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		key *keymaterial.Key
		err error
	)
	if *mnemonic {
		phrase, perr := keymaterial.NewMnemonic()
		if perr != nil {
			return perr
		}
		fmt.Fprintf(e.stderr, "recovery phrase: %s\n", phrase)
		key, err = keymaterial.FromMnemonic(phrase, "", keymaterial.Options{})
	} else {
		key, err = keymaterial.Generate(*length, keymaterial.Options{})
	}
	if err != nil {
		return err
	}
	v, err := key.Value()
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, v)
	fmt.Fprintf(e.stderr, "fingerprint: %s\n", key.Fingerprint())
	return nil
}

func runFingerprint(e *env, args []string) error {
	fs := newFlagSet(e, "fingerprint")
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := c.load(e)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s layers=%d scheduler=%s\n",
		rt.cipher.InitKey().Fingerprint(), rt.cipher.Layers(), rt.cipher.Scheduler().Name())
	return nil
}

// dialer holds the flags shared by seal and open.
type dialer struct {
	remote  string
	timeout time.Duration
}

func (d *dialer) register(fs *flag.FlagSet) {
	fs.StringVar(&d.remote, "remote", "", "use the laminate server at this address instead of sealing locally")
	fs.DurationVar(&d.timeout, "timeout", 30*time.Second, "remote request timeout")
}

func (d *dialer) dial(ctx context.Context, rt *runtime) (*service.Client, error) {
	return service.Dial(ctx, d.remote, rt.cipher.InitKey(), service.ClientOptions{
		Logger:     rt.logger,
		Transport:  quic.Options{IdleTimeout: rt.cfg.Service.IdleTimeout},
		MaxStreams: 1,
	})
}

func runSeal(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "seal")
	var (
		c common
		d dialer
	)
	c.register(fs)
	d.register(fs)
	in := fs.String("in", "", "input file (default stdin)")
	out := fs.String("out", "", "output file (default stdout); with -shards, the shard file prefix")
	asJSON := fs.Bool("json", false, "treat the input as a JSON document; otherwise it is text, or binary when not UTF-8")
	shards := fs.String("shards", "", "split the ciphertext into data+parity shards, e.g. 4+2")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := c.load(e)
	if err != nil {
		return err
	}

	input, err := readInput(e, *in)
	if err != nil {
		return err
	}
	var payload any
	switch {
	case *asJSON:
		if !json.Valid(input) || !utf8.Valid(input) {
			return fmt.Errorf("%w: input is not valid JSON", laminate.ErrSerialization)
		}
		payload = json.RawMessage(input)
	case utf8.Valid(input):
		payload = string(input)
	default:
		payload = binaryPayload{Data: input}
	}

	var ciphertext string
	if d.remote != "" {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		client, err := d.dial(ctx, rt)
		if err != nil {
			return err
		}
		defer client.Close()
		if ciphertext, err = client.Seal(ctx, payload); err != nil {
			return err
		}
	} else if ciphertext, err = rt.cipher.Encrypt(payload); err != nil {
		return err
	}
	rt.logger.Info("sealed",
		"input", units.HumanSize(float64(len(input))),
		"output", units.HumanSize(float64(len(ciphertext))),
		"layers", rt.cipher.Layers())

	if *shards == "" {
		return writeOutput(e, *out, []byte(ciphertext+"\n"))
	}
	if *out == "" || *out == "-" {
		return errors.New("seal: -shards needs -out")
	}
	dataShards, parityShards, err := parseShardLayout(*shards)
	if err != nil {
		return err
	}
	a, err := armor.New(dataShards, parityShards)
	if err != nil {
		return err
	}
	sealed, err := a.Seal(ciphertext)
	if err != nil {
		return err
	}
	var total int
	for _, s := range sealed {
		b, err := s.MarshalBinary()
		if err != nil {
			return err
		}
		if err := os.WriteFile(shardPath(*out, s.Index), b, 0o600); err != nil {
			return err
		}
		total += len(b)
	}
	rt.logger.Info("wrote shards",
		"count", len(sealed),
		"tolerates", parityShards,
		"total", units.HumanSize(float64(total)))
	return nil
}

func shardPath(prefix string, index int) string {
	return fmt.Sprintf("%s.%03d.lms", prefix, index)
}

func runOpen(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "open")
	var (
		c common
		d dialer
	)
	c.register(fs)
	d.register(fs)
	in := fs.String("in", "", "ciphertext file (default stdin)")
	out := fs.String("out", "", "output file (default stdout)")
	asJSON := fs.Bool("json", false, "write the payload as JSON even when it is a string")
	shards := fs.String("shards", "", "glob matching shard files to rebuild the ciphertext from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := c.load(e)
	if err != nil {
		return err
	}

	var ciphertext string
	if *shards != "" {
		if ciphertext, err = readShards(rt, *shards); err != nil {
			return err
		}
	} else {
		input, err := readInput(e, *in)
		if err != nil {
			return err
		}
		ciphertext = strings.TrimSpace(string(input))
	}

	var dec *laminate.Decrypted
	if d.remote != "" {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		client, err := d.dial(ctx, rt)
		if err != nil {
			return err
		}
		defer client.Close()
		if dec, err = client.Open(ctx, ciphertext); err != nil {
			return err
		}
	} else if dec, err = rt.cipher.Decrypt(ciphertext); err != nil {
		return err
	}

	if !*asJSON {
		var s string
		if json.Unmarshal(dec.Payload, &s) == nil {
			return writeOutput(e, *out, []byte(s))
		}
		if b, ok := decodeBinary(dec.Payload); ok {
			return writeOutput(e, *out, b)
		}
	}
	return writeOutput(e, *out, append(dec.Payload, '\n'))
}

// binaryPayload carries input that is not UTF-8 text. JSON strings cannot hold
// arbitrary bytes, so the data travels base64-encoded under a marker key.
type binaryPayload struct {
	Data []byte `json:"laminate.binary"`
}

func decodeBinary(payload []byte) ([]byte, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || len(fields) != 1 {
		return nil, false
	}
	if _, ok := fields["laminate.binary"]; !ok {
		return nil, false
	}
	var bp binaryPayload
	if err := json.Unmarshal(payload, &bp); err != nil {
		return nil, false
	}
	return bp.Data, true
}

// readShards parses every file matching pattern. Unreadable or corrupt files
// are skipped; armor decides whether enough remain.
func readShards(rt *runtime, pattern string) (string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("open: no shards match %q", pattern)
	}
	sort.Strings(paths)

	var list []armor.Shard
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			rt.logger.Warn("skipping shard", "path", p, "error", err)
			continue
		}
		s, err := armor.ParseShard(b)
		if err != nil {
			rt.logger.Warn("skipping shard", "path", p, "error", err)
			continue
		}
		list = append(list, s)
	}
	rt.logger.Debug("read shards", "found", len(paths), "usable", len(list))
	return armor.Open(list)
}

func runServe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "serve")
	var c common
	c.register(fs)
	listen := fs.String("listen", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := c.load(e)
	if err != nil {
		return err
	}
	sc := rt.cfg.Service
	if *listen != "" {
		sc.Listen = *listen
	}

	opts := service.ServerOptions{
		Logger:    rt.logger,
		Limiter:   service.NewLimiter(sc.RateLimit.RPS, sc.RateLimit.Burst, limiterIdleTTL),
		Transport: quic.Options{IdleTimeout: sc.IdleTimeout},
	}
	if sc.Metrics != "" {
		opts.Metrics = service.NewMetrics()
		opts.MetricsAddr = sc.Metrics
	}
	srv := service.NewServer(rt.cipher, opts)
	if err := srv.Listen(sc.Listen); err != nil {
		return err
	}
	return srv.Run(ctx)
}
