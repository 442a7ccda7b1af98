package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/orgview/internal"
	pkgconfig "github.com/starford/orgview/pkg/config"
)

// loadConfig reads the config file named by --config. The server commands
// require it; view and edit fall back to defaults plus ORGVIEW_* overrides.
func loadConfig(cmd *cli.Command, required bool) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	path := cmd.String("config")

	var err error
	if required {
		err = pkgconfig.Load(path, cfg)
	} else {
		err = pkgconfig.LoadOptional(path, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := cmd.String("server"); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := cmd.String("token"); v != "" {
		cfg.Client.Token = v
	}
	if err := cfg.Client.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func view(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("view: document path required")
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return internal.RunView(ctx, path, internal.ViewOptions{
		HTML:  cmd.Bool("html"),
		Watch: cmd.Bool("watch"),
	}, internal.WithConfig(cfg))
}

func edit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("edit: document path required")
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if v := cmd.String("editor"); v != "" {
		cfg.Client.Editor = v
	}
	return internal.RunEdit(ctx, path, internal.WithConfig(cfg))
}

func main() {
	clientFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Server base URL (overrides client.server_url)",
			Sources: cli.EnvVars("ORGVIEW_SERVER"),
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Bearer token (overrides client.token)",
			Sources: cli.EnvVars("ORGVIEW_TOKEN"),
		},
	}

	cmd := &cli.Command{
		Name:   "orgview",
		Usage:  "Serve, view and edit an org of structured Markdown documents",
		Action: serve,
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
				Name:   "serve",
				Usage:  "Run the HTTP server, file watcher and change feeds",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdin/stdout",
				Action: mcp,
			},
			{
				Name:      "view",
				Usage:     "Print a document",
				ArgsUsage: "<path>",
				Action:    view,
				Flags: append([]cli.Flag{
					&cli.BoolFlag{Name: "html", Usage: "Render as an HTML page"},
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Reprint whenever the document changes"},
				}, clientFlags...),
			},
			{
				Name:      "edit",
				Usage:     "Edit a document's fields and body in $EDITOR",
				ArgsUsage: "<path>",
				Action:    edit,
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "editor", Usage: "Editor command (overrides client.editor, $VISUAL, $EDITOR)"},
				}, clientFlags...),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
