package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"famcal/internal/batch"
	"famcal/internal/config"
	appLog "famcal/internal/log"
	"famcal/internal/series"
	"famcal/internal/storage"
	"famcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	appLog.Info("famcal starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"db_path", conf.DBPath,
		"max_window_days", conf.MaxWindowDays,
		"batch_cron", conf.Batch.Cron,
		"batch_horizon_days", conf.Batch.HorizonDays,
		"once", flags.once,
	)

	repo, err := storage.OpenSQLite(conf.DBPath)
	if err != nil {
		appLog.Error("failed to open database", err, "db_path", conf.DBPath)
		os.Exit(1)
	}
	defer repo.Close()

	if err := storage.MigrateUp(repo.DB()); err != nil {
		appLog.Error("failed to run migrations", err)
		os.Exit(1)
	}

	svc := series.NewService(repo, conf.MaxWindowDays)
	gen := batch.NewGenerator(svc, repo, conf.Batch.HorizonDays)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if err := gen.FillAll(ctx); err != nil {
			appLog.Error("batch fill failed", err)
			os.Exit(1)
		}
		appLog.Info("famcal exiting")
		return
	}

	if err := gen.Start(conf.Batch.Cron); err != nil {
		appLog.Error("failed to start batch generator", err)
		os.Exit(1)
	}
	defer gen.Stop()

	srv := web.NewServer(conf, svc)
	if err := srv.Serve(ctx); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("famcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/famcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one batch pre-fill cycle and exit")

	flag.Parse()

	return cfg
}
