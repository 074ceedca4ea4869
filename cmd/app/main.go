package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/bread/internal"
	"github.com/starford/bread/internal/site"
	pkgconfig "github.com/starford/bread/pkg/config"
)

// version is set at link time.
var version = "dev"

// loadConfig reads the config file at path, then applies the output flag
// over it. The flag wins over the file.
func loadConfig(path, output string) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if output == "" {
		return cfg, nil
	}
	cfg.Site.Output = output
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func build(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd.String("output"))
	if err != nil {
		return err
	}
	rep, err := internal.Build(ctx, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if rep.Outcome == site.OutcomePartial {
		return cli.Exit(fmt.Sprintf("build finished with %d failed document(s)", len(rep.Failures)), 2)
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd.String("output"))
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd.String("output"))
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func main() {
	cmd := &cli.Command{
		Name:    "bread",
		Usage:   "Static site generator for Markdown with post lists and tag clouds",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file; built-in defaults apply when it does not exist",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Override the output directory",
				Sources: cli.EnvVars("BREAD_OUTPUT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Build the site once; exits 2 when some documents failed",
				Action: build,
			},
			{
				Name:   "serve",
				Usage:  "Build, watch for changes and serve the site with a JSON API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Expose build tools over MCP on stdin/stdout",
				Action: runMCP,
			},
		},
		Action: build,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
