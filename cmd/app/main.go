package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tirelire/internal"
	pkgconfig "github.com/starford/tirelire/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func runRecurring(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	action := internal.RecurringCheck
	switch {
	case cmd.Bool("accept") && cmd.Bool("skip"):
		return fmt.Errorf("--accept and --skip are mutually exclusive")
	case cmd.Bool("accept"):
		action = internal.RecurringAccept
	case cmd.Bool("skip"):
		action = internal.RecurringSkip
	}

	opts := []internal.Option{internal.WithConfig(cfg)}
	if path := cmd.String("marker-file"); path != "" {
		opts = append(opts, internal.WithMarkerFile(path))
	}
	return internal.RunRecurring(ctx, action, os.Stdout, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "tirelire",
		Usage:  "Personal budget tracker backend with notes, attachments and recurring transactions",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve budget and note tools over MCP (stdio)",
				Action: runMCP,
			},
			{
				Name:   "recurring",
				Usage:  "Check, accept or skip this month's recurring transaction offer",
				Action: runRecurring,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "accept", Usage: "Copy last month's recurring transactions into this month"},
					&cli.BoolFlag{Name: "skip", Usage: "Dismiss this month's offer"},
					&cli.StringFlag{
						Name:    "marker-file",
						Usage:   "Keep the once-per-month marker in this YAML file instead of the database",
						Sources: cli.EnvVars("TIRELIRE_MARKER_FILE"),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
