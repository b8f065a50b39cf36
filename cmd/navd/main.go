// Command navd serves materialize runs, coverage queries, health checks and
// Prometheus metrics over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"navpulse/internal/app"
	"navpulse/internal/config"
	"navpulse/pkg/contracts"
)

func main() {
	configFile := flag.String("config", "", "config file (defaults to $NAV_CONFIG_FILE or ./config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString(app.AppName))
		return
	}

	var cfg *config.Config
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadFile(*configFile); err != nil {
			slog.Error("config_load_failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	ctx := context.Background()
	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		slog.Error("application_init_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		application.Logger.Error("application_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
