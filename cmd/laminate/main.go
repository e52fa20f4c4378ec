// Command laminate seals and opens payloads with a layered cipher, either
// locally or through a laminate server.
//
//	laminate keygen [-length 32] [-mnemonic]
//	laminate fingerprint
//	laminate seal [-in f] [-out f] [-json] [-shards d+p] [-remote addr]
//	laminate open [-in f | -shards glob] [-out f] [-json] [-remote addr]
//	laminate serve
//
// Every command except keygen accepts -config and -key-file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

var errUsage = errors.New("usage: laminate <keygen|fingerprint|seal|open|serve> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := run(ctx, env, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "laminate: %v\n", err)
		os.Exit(1)
	}
}

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "keygen":
		return runKeygen(e, rest)
	case "fingerprint":
		return runFingerprint(e, rest)
	case "seal":
		return runSeal(ctx, e, rest)
	case "open":
		return runOpen(ctx, e, rest)
	case "serve":
		return runServe(ctx, e, rest)
	case "help", "-h", "--help":
		fmt.Fprintln(e.stdout, errUsage.Error())
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
