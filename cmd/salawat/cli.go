package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/salawat/internal/errors"
	"github.com/hpungsan/salawat/internal/mcp"
	"github.com/hpungsan/salawat/internal/ops"
	"github.com/hpungsan/salawat/internal/telegram"
	"github.com/hpungsan/salawat/internal/web"
)

// defaultHTTPAddr is used by serve when no http_addr is configured.
const defaultHTTPAddr = "127.0.0.1:8080"

// newCLIApp creates the CLI application with all commands.
func newCLIApp(out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "salawat",
		Usage:   "Shared group contribution counter",
		Version: Version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "home", EnvVars: []string{"SALAWAT_HOME"}, Usage: "Base directory for config and state (default ~/.salawat)"},
			&cli.StringFlag{Name: "backend", Usage: "Counter backend: file|sqlite|redis (overrides config)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug|info|warn|error (overrides config)"},
		},
		Commands: []*cli.Command{
			botCmd(),
			serveCmd(),
			totalCmd(),
			addCmd(),
			mcpCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// botCmd creates the bot command.
func botCmd() *cli.Command {
	return &cli.Command{
		Name:  "bot",
		Usage: "Run the Telegram bot (requires BOT_TOKEN), plus the status server when http_addr is set",
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			if rt.cfg.BotToken == "" {
				return outputError(errors.NewInvalidRequest("BOT_TOKEN is not set"))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := checkState(ctx, rt); err != nil {
				return outputError(err)
			}

			client := telegram.NewClient(rt.cfg.BotToken)
			bot := telegram.NewBot(client, rt.engine,
				telegram.WithLogger(rt.logger),
				telegram.WithWorkers(rt.cfg.Workers),
				telegram.WithPollTimeout(rt.cfg.PollTimeout()),
			)

			// A failure on either side cancels gctx and stops the other.
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return bot.Run(gctx)
			})
			if rt.cfg.HTTPAddr != "" {
				srv := web.NewServer(rt.engine, promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}), rt.cfg.HTTPAddr)
				g.Go(func() error {
					return web.Run(gctx, srv, rt.logger)
				})
			}
			if err := g.Wait(); err != nil {
				return outputError(err)
			}
			rt.logger.Info("bot stopped")
			return nil
		},
	}
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run only the status server (/total, /healthz, /metrics)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default: http_addr from config, else " + defaultHTTPAddr + ")"},
		},
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			addr := c.String("addr")
			if addr == "" {
				addr = rt.cfg.HTTPAddr
			}
			if addr == "" {
				addr = defaultHTTPAddr
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := checkState(ctx, rt); err != nil {
				return outputError(err)
			}

			srv := web.NewServer(rt.engine, promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}), addr)
			if err := web.Run(ctx, srv, rt.logger); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// totalCmd creates the total command.
func totalCmd() *cli.Command {
	return &cli.Command{
		Name:  "total",
		Usage: "Print the current total",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "human", Usage: "Print a comma-grouped number instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			total, err := rt.engine.CurrentTotal(c.Context)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("human") {
				_, err := fmt.Fprintln(c.App.Writer, humanize.Comma(total))
				return err
			}
			return outputJSON(c.App.Writer, map[string]int64{"total": total})
		},
	}
}

// addCmd creates the add command.
func addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a contribution to the total (use -- before negative amounts)",
		ArgsUsage: "<amount>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "event-id", Usage: "Idempotency key; repeating it applies nothing (default: new ULID)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one amount is required"))
			}
			amount, err := ops.ParseAmount(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			output, err := rt.engine.Add(c.Context, ops.AddInput{
				Amount:  amount,
				EventID: c.String("event-id"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:        "mcp",
		Usage:       "Run the MCP server over stdio",
		Description: "Tools: " + strings.Join(mcp.AllToolNames(), ", "),
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			if err := mcp.Run(rt.engine, Version); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// checkState refuses to start long-running commands on an unreadable counter.
func checkState(ctx context.Context, rt *runtime) error {
	total, err := rt.engine.CurrentTotal(ctx)
	if err != nil {
		rt.logger.Error("counter state unreadable", zap.Error(err))
		return err
	}
	rt.logger.Info("counter ready", zap.String("backend", rt.cfg.Backend), zap.Int64("total", total))
	return nil
}

// outputJSON writes JSON to w.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var sErr *errors.SalawatError
	if stderrors.As(err, &sErr) {
		// The operator is local, so the cause is shown here but not to remote clients.
		if sErr.Cause != nil {
			return cli.Exit(fmt.Sprintf("[%s] %s: %v", sErr.Code, sErr.Message, sErr.Cause), 1)
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
