// Command preconf-deployer deploys the PreConf contract suite: UserRegistry and
// ProviderRegistry first, then PreConfCommitmentStore wired to both.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/primev/preconf-deployer/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: ./config.yaml if present)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, *configPath, os.Stdout, os.Stderr)
	stop()

	os.Exit(exitCode(err))
}

// exitCode maps the outcome of a run to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// run loads configuration and performs one deployment. The address report goes to
// stdout and logs go to stderr.
func run(ctx context.Context, configPath string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "preconf-deployer: %v\n", err)
		return err
	}

	logger := newLogger(cfg.Log, stderr)
	d := newDeployer(cfg, logger, stdout)

	if err := d.run(ctx); err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
