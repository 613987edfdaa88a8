// Monitor prints a read-only snapshot of the sift priority queues.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	sc "github.com/linnemanlabs/sift/internal/cfg"
	"github.com/linnemanlabs/sift/internal/monitor"
	"github.com/linnemanlabs/sift/internal/queue"
)

const appName = "sift"
const component = "monitor"

// main always exits 0; problems are printed, never fatal.
func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
}

func run(args []string, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component

	var (
		monCfg sc.MonitorConfig
		logCfg log.Config
	)
	// ContinueOnError keeps a bad flag from exiting with status 2
	fs := flag.NewFlagSet(appName+"-"+component, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	monCfg.RegisterFlags(fs)
	logCfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg.FillFromEnv(fs, "SIFT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(monCfg.Validate(), logCfg.Validate()); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)

	client, err := queue.NewClient(ctx, queue.Config{
		Addr:     monCfg.Queue.RedisAddr,
		Password: monCfg.Queue.RedisPassword,
		DB:       monCfg.Queue.RedisDB,
	})
	if err != nil {
		L.Warn(ctx, "redis not reachable", "addr", monCfg.Queue.RedisAddr, "error", err)
		fmt.Fprintf(stdout, "Error connecting to queue at %s: %v\n", monCfg.Queue.RedisAddr, err)
		return nil
	}
	q := queue.New(client, 0)
	defer func() { _ = q.Close() }()

	return monitor.Report(ctx, stdout, q, []monitor.Queue{
		{Title: "HIGH PRIORITY", Destination: monCfg.HighQueue},
		{Title: "NORMAL PRIORITY", Destination: monCfg.NormalQueue},
	}, time.Now())
}
