// Command profkeeper reconciles scraped profiles into a tabular store.
//
// Usage:
//
//	profkeeper -config profkeeper.yaml -once          # one manual run, print summary
//	profkeeper -config profkeeper.yaml -daemon        # scheduler + dashboard
//	profkeeper -config profkeeper.yaml -mcp           # MCP server on stdio
//	profkeeper -config profkeeper.yaml -daemon -mcp   # both
//	profkeeper -config profkeeper.yaml -enqueue 1234  # add a target and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/profkeeper/keeper"
)

const version = "0.1.0"

const usage = "usage: profkeeper [-config <file>] -once | -daemon | -mcp | -enqueue <target>"

// errUsage means no mode flag was given.
var errUsage = errors.New("no mode selected")

type options struct {
	configPath string
	backend    string
	once       bool
	daemon     bool
	mcp        bool
	enqueue    string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to profkeeper.yaml config file")
	flag.StringVar(&opts.backend, "backend", "", "override store backend: sqlite, sheets, postgres, memory")
	flag.BoolVar(&opts.once, "once", false, "run one reconciliation pass and exit")
	flag.BoolVar(&opts.daemon, "daemon", false, "run the scheduler and the dashboard")
	flag.BoolVar(&opts.mcp, "mcp", false, "serve MCP tools on stdio")
	flag.StringVar(&opts.enqueue, "enqueue", "", "add a target to the queue and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stdout carries MCP frames and summaries; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			flag.PrintDefaults()
			os.Exit(2)
		}
		logger.Error("profkeeper: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	if !opts.once && !opts.daemon && !opts.mcp && opts.enqueue == "" {
		return errUsage
	}

	cfg, err := keeper.LoadConfigFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if opts.backend != "" {
		cfg.Store.Backend = opts.backend
	}

	k, err := keeper.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer k.Close()

	if opts.enqueue != "" {
		pos, err := k.Enqueue(ctx, opts.enqueue)
		if err != nil {
			return err
		}
		logger.Info("profkeeper: enqueued", "target", opts.enqueue, "position", pos)
		if !opts.once && !opts.daemon && !opts.mcp {
			return nil
		}
	}

	if opts.once {
		sum, err := k.RunOnce(ctx, keeper.TriggerManual)
		if err != nil {
			return err
		}
		if sum.Skipped {
			fmt.Fprintln(os.Stderr, "profkeeper: another run is in progress, nothing done")
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	g, gctx := errgroup.WithContext(ctx)

	if opts.daemon {
		g.Go(func() error {
			k.Schedule(gctx)
			return nil
		})

		srv := &http.Server{Addr: cfg.Dashboard.Addr, Handler: k.Router(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("profkeeper: dashboard listening", "addr", cfg.Dashboard.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.mcp {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "profkeeper", Version: version}, nil)
		k.RegisterMCP(mcpSrv)
		g.Go(func() error {
			logger.Info("profkeeper: MCP on stdio")
			if err := mcpSrv.Run(gctx, &mcp.StdioTransport{}); err != nil && gctx.Err() == nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("profkeeper: shutting down")
	return err
}
