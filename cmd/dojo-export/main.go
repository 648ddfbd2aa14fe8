package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/use-agent/dojo-export/batch"
	"github.com/use-agent/dojo-export/config"
	"github.com/use-agent/dojo-export/models"
	"github.com/use-agent/dojo-export/report"
	"github.com/use-agent/dojo-export/session"
	"github.com/use-agent/dojo-export/webhook"
	"github.com/use-agent/dojo-export/workflow"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newSession builds the browser session a run drives.
var newSession = func(cfg *config.Config) batch.Session {
	return session.NewManager(cfg.Browser, cfg.DefectDojo.BaseURL, cfg.Export.OutputDir, cfg.Export.StepTimeout)
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dojo-export",
		Usage: "export findings of the latest DefectDojo engagement for a list of products",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file merged into the environment",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "products",
				Usage: "comma separated product names (overrides PRODUCTS)",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "directory for spreadsheets and the summary (overrides OUTPUT_DIR)",
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "export file name template with {moduleName} and {version}",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "run the browser headless (overrides HEADLESS_MODE)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	// ── 1. Load configuration ───────────────────────────────────────
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	cfg := config.Load()
	applyFlags(c, cfg)

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrNoProducts) {
			slog.Error("no products configured",
				"hint", "set PRODUCTS in .env, e.g. PRODUCTS=product1,product2,product3")
		} else {
			slog.Error("invalid configuration", "error", err)
		}
		return cli.Exit("configuration error: "+err.Error(), 1)
	}

	slog.Info("dojo-export starting",
		"url", cfg.DefectDojo.BaseURL,
		"headless", cfg.Browser.Headless,
		"outputDir", cfg.Export.OutputDir,
		"products", len(cfg.Products),
	)
	for i, p := range cfg.Products {
		slog.Debug("product queued", "index", i+1, "product", p)
	}

	// ── 3. Wire session, workflow and runner ────────────────────────
	mgr := newSession(cfg)

	exporter := workflow.New(workflow.Options{
		BaseURL:          cfg.DefectDojo.BaseURL,
		OutputDir:        cfg.Export.OutputDir,
		FilenameTemplate: cfg.Export.FilenameTemplate,
		StepTimeout:      cfg.Export.StepTimeout,
		TableTimeout:     cfg.Export.TableTimeout,
		OptionTimeout:    cfg.Export.OptionTimeout,
		DownloadTimeout:  cfg.Export.DownloadTimeout,
	})

	var notifier batch.Notifier
	if cfg.Webhook.URL != "" {
		notifier = webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret)
	}

	runner := batch.NewRunner(mgr, exporter.Process, batch.Options{
		OutputDir: cfg.Export.OutputDir,
		Credentials: session.Credentials{
			Username: cfg.DefectDojo.Username,
			Password: cfg.DefectDojo.Password,
		},
		ProductDelay: cfg.Batch.ProductDelay,
		Notifier:     notifier,
	})

	// ── 4. Run ──────────────────────────────────────────────────────
	summary, path, err := runner.Run(context.Background(), cfg.Products)
	if summary != nil {
		printReport(os.Stdout, summary, path)
	}
	if err != nil {
		slog.Error("automation failed", "error", err)
		return cli.Exit("automation failed: "+err.Error(), 1)
	}

	slog.Info("all done", "outputDir", cfg.Export.OutputDir)
	return nil
}

// printReport writes the console report; a failed write is only logged.
func printReport(w io.Writer, summary *models.RunSummary, path string) bool {
	if err := report.Print(w, summary, path); err != nil {
		slog.Warn("failed to print report", "error", err)
		return false
	}
	return true
}

// applyFlags lets explicit flags win over the environment.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("products") {
		cfg.Products = config.ParseProducts(c.String("products"))
	}
	if c.IsSet("output-dir") {
		cfg.Export.OutputDir = c.String("output-dir")
	}
	if c.IsSet("template") {
		cfg.Export.FilenameTemplate = c.String("template")
	}
	if c.IsSet("headless") {
		cfg.Browser.Headless = c.Bool("headless")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
