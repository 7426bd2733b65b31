package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/nurpe/tender-eval/internal/auth"
	"github.com/nurpe/tender-eval/internal/db"
	"github.com/nurpe/tender-eval/internal/excel"
	httphandler "github.com/nurpe/tender-eval/internal/http"
	"github.com/nurpe/tender-eval/internal/http/middleware"
	"github.com/nurpe/tender-eval/internal/pdf"
	"github.com/nurpe/tender-eval/internal/repository"
	"github.com/nurpe/tender-eval/internal/service"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tender evaluation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, log, err := setup(true)
		if err != nil {
			return err
		}

		database, err := db.New(cfg, log)
		if err != nil {
			return eris.Wrap(err, "connect database")
		}
		if sqlDB, err := database.DB(); err == nil {
			defer sqlDB.Close()
		}

		evaluations := service.NewEvaluationService(
			repository.NewEvaluationRepository(database),
			service.Collaborators{
				Firms:        repository.NewFirmRepository(database),
				FeeStructure: repository.NewFeeStructureRepository(database),
				Submissions:  repository.NewSubmissionRepository(database),
			},
			cfg,
			log,
		)
		exporter := service.NewExporter(evaluations, excel.NewGenerator(), pdf.NewGenerator())

		tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
		handler := httphandler.NewHandler(evaluations, exporter, cfg.Tender.RequestTimeout, log)
		router := httphandler.NewRouter(handler, middleware.Auth(tokenParser), cfg.Environment, cfg.HTTP.AllowedOrigins)

		port := servePort
		if port == 0 {
			port = cfg.HTTP.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown failed")
			}
		}()

		log.Info().Str("addr", srv.Addr).Msg("starting tender evaluation service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
