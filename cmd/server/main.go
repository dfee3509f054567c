package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"incidentreg/config"
	"incidentreg/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", os.Getenv("INCIDENTREG_CONFIG"), "path to YAML config file")
	showEnv := flag.Bool("env-help", false, "print supported environment variables and exit")
	flag.Parse()

	if *showEnv {
		fmt.Println(config.Usage())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appbootstrap.Run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "incidentreg: %v\n", err)
		os.Exit(1)
	}
}
