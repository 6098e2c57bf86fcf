package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"querybridge/internal/app"
	"querybridge/internal/config"
	"querybridge/internal/driver"
	"querybridge/internal/observability"
	"querybridge/internal/storage"
)

// cliState carries the service and resolved profile into command RunE funcs.
type cliState struct {
	cfg     *config.Config
	service *app.Service
	profile driver.Profile
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	var profileName string

	root := &cobra.Command{
		Use:           "querybridge",
		Short:         "Query and export data from DuckDB, ClickHouse, SQLite, PostgreSQL and MySQL",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, JSON: cfg.LogJSON}, os.Stderr)

			sink, err := buildSink(cfg, logger)
			if err != nil {
				return err
			}
			if cfg.MetricsAddr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
						logger.Error("metrics server stopped", "error", err)
					}
				}()
			}

			state.cfg = cfg
			state.service = app.New(app.Options{
				Sink:          sink,
				Limits:        cfg.Limits(),
				ExportWorkers: cfg.WorkerCount,
				ExportTimeout: cfg.DefaultTimeout,
				Logger:        logger,
			})

			if cmd.Name() == "profiles" {
				return nil
			}

			profiles, err := config.LoadProfiles()
			if err != nil {
				return err
			}
			saved, ok := profiles.Find(profileName)
			if !ok {
				return fmt.Errorf("no saved profile named %q", profileName)
			}
			state.profile, err = saved.Resolve()
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if state.service != nil {
				_ = state.service.Close()
			}
		},
	}

	root.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "saved connection profile name")

	root.AddCommand(
		newSchemasCmd(state),
		newTablesCmd(state),
		newDescribeCmd(state),
		newQueryCmd(state),
		newCountCmd(state),
		newDropCmd(state),
		newExportCmd(state),
		newProfilesCmd(),
	)
	return root
}

func buildSink(cfg *config.Config, logger *slog.Logger) (storage.Sink, error) {
	if cfg.StorageType == "s3" {
		return storage.NewS3Sink(cfg.S3, logger), nil
	}
	return storage.NewLocalSink(cfg.LocalStoragePath)
}
