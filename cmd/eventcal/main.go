package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"eventcal/internal/aggregate"
	"eventcal/internal/browser"
	"eventcal/internal/config"
	"eventcal/internal/export"
	appLog "eventcal/internal/log"
	"eventcal/internal/source"
	"eventcal/internal/source/extract"
	"eventcal/internal/source/marketplace"
	"eventcal/internal/source/ticketing"
	"eventcal/internal/web"
)

const version = "0.1.0"

func main() {
	// .env is optional.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "eventcal",
		Usage:   "Aggregate Tampa event listings into one deduplicated calendar feed.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to config file (created with defaults on first run)",
				EnvVars: []string{"EVENTCAL_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			exportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLog.Error("eventcal failed", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config if set)"},
			&cli.StringFlag{Name: "static-file", Usage: "Serve this events.json instead of querying sources"},
		},
		Action: func(c *cli.Context) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("listen"); v != "" {
				conf.Listen = v
			}
			if v := c.String("static-file"); v != "" {
				conf.StaticFile = v
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc := aggregate.NewService(aggregate.New(buildSources(conf)...), aggregate.NewCache(conf.CacheTTL, nil))
			return web.StartServer(ctx, conf, svc)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Aggregate once and write the static events.json files.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path (repeatable, overrides config)"},
			&cli.StringFlag{Name: "schedule", Usage: "Cron expression; keep running and export on this schedule"},
		},
		Action: func(c *cli.Context) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}
			paths := conf.Export.Paths
			if out := c.StringSlice("out"); len(out) > 0 {
				paths = out
			}
			schedule := conf.Export.Schedule
			if v := c.String("schedule"); v != "" {
				schedule = v
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := export.NewRunner(aggregate.New(buildSources(conf)...), paths, nil)
			if err := runner.RunOnce(ctx); err != nil {
				if schedule == "" {
					return err
				}
				appLog.Error("initial export failed", err)
			}
			if schedule == "" {
				return nil
			}
			return runner.Schedule(ctx, schedule)
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	conf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	conf.ApplyEnv(os.LookupEnv)
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	appLog.Init(os.Stderr, conf.Log.Format, conf.Log.Level)
	appLog.Info("effective config",
		"version", version,
		"config_path", path,
		"listen", conf.Listen,
		"cache_ttl", conf.CacheTTL.String(),
		"static_file", conf.StaticFile,
		"marketplace", conf.Marketplace.Enabled,
		"ticketing", conf.Ticketing.Enabled,
		"extract", conf.Extract.Enabled(),
		"extract_pages", len(conf.Extract.Pages),
	)
	return conf, nil
}

// buildSources returns the sources in merge priority order.
func buildSources(conf *config.Config) []source.Source {
	launcher := browser.NewLauncher(browser.Options{
		ExecPath:   conf.Ticketing.ExecPath,
		RenderWait: conf.Ticketing.RenderWait,
		Timeout:    conf.Ticketing.BrowserTimeout,
	})
	return []source.Source{
		marketplace.New(conf.Marketplace),
		ticketing.New(conf.Ticketing, ticketing.BrowserOpener(launcher), nil),
		extract.New(conf.Extract),
	}
}
