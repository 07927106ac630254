package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"anthropic-manifold/internal/anthropic"
	"anthropic-manifold/internal/config"
	"anthropic-manifold/internal/pipeline"
	"anthropic-manifold/internal/server"
)

const serveUsage = `Usage:
  anthropic-manifold serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (optional)
  --port   int      Override server port from configuration

The Anthropic credential is read from ` + config.EnvAPIKey + `.`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	registry := pipeline.NewRegistry()
	manifold := anthropic.New(pipeline.Valves{
		APIKey:  config.Credential(),
		BaseURL: cfg.Anthropic.BaseURL,
	}, nil)
	if err := registry.Register(manifold); err != nil {
		return err
	}

	srv, err := server.New(cfg, registry)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
