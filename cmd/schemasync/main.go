// Command schemasync keeps the embedded schema mirror honest.
//
//	schemasync fetch [-out schema.graphql]    introspect the remote API into SDL
//	schemasync check [-schema remote.graphql] validate operations and report drift
//
// Connection settings come from the environment, or from config flags after
// "--", e.g. schemasync fetch -out - -- -api-key KEY.
//
// check exits 1 when an embedded operation no longer validates or the remote
// schema has breaking changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/config"
	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/logger"
)

const (
	exitOK    = 0
	exitDrift = 1
	exitError = 2
)

func main() {
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: schemasync fetch [-out file] [-- config flags] | check [-schema file] [-- config flags]")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitError
	}
	switch args[0] {
	case "fetch":
		return runFetch(ctx, args[1:], stdout, stderr)
	case "check":
		return runCheck(ctx, args[1:], stdout, stderr)
	default:
		usage(stderr)
		return exitError
	}
}

func runFetch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("fetch", flag.ContinueOnError)
	flags.SetOutput(stderr)
	out := flags.String("out", "schema.graphql", `output file ("-" for stdout)`)
	if err := flags.Parse(args); err != nil {
		return exitError
	}

	cfg, err := config.Parse(flags.Args())
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitError
	}
	if cfg.APIKey == "" {
		fmt.Fprintln(stderr, "missing required config: API_KEY or -api-key")
		return exitError
	}

	client := gqlclient.New(gqlclient.Options{
		Endpoint:   cfg.APIURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
	})
	sdl, err := fetchSDL(ctx, client)
	if err != nil {
		logger.Log.Error("introspection failed", zap.String("endpoint", cfg.APIURL), zap.Error(err))
		fmt.Fprintln(stderr, err)
		return exitError
	}
	if err := writeSDL(*out, sdl, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	logger.Log.Info("schema fetched", zap.String("endpoint", cfg.APIURL), zap.String("out", *out))
	return exitOK
}

func runCheck(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	flags.SetOutput(stderr)
	path := flags.String("schema", "", "remote SDL file; fetched from the API when empty")
	if err := flags.Parse(args); err != nil {
		return exitError
	}

	var (
		name = *path
		sdl  string
	)
	if name != "" {
		b, err := os.ReadFile(name)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		sdl = string(b)
	} else {
		cfg, err := config.Parse(flags.Args())
		if err != nil {
			fmt.Fprintln(stderr, "config:", err)
			return exitError
		}
		name = cfg.APIURL
		sdl, err = fetchSDL(ctx, gqlclient.New(gqlclient.Options{
			Endpoint:   cfg.APIURL,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
		}))
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
	}

	r, err := check(name, sdl)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	r.Write(stdout)
	if r.Failed() {
		return exitDrift
	}
	return exitOK
}
