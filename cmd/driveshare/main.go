// driveshare serves the document and folder storage API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"driveshare/config"
	"driveshare/core/appbootstrap"
	"driveshare/core/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("driveshare", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "config/app.yaml", "path to the YAML config file; environment variables are used when it is missing")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := utils.NewLoggerWith(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return appbootstrap.Run(ctx, cfg, logger)
}
