package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geoquiz/internal/app"
	"geoquiz/internal/app/observability"
	"geoquiz/internal/bank"
	"geoquiz/internal/flow"
	"geoquiz/internal/platform/logger"
	"geoquiz/internal/report"
	"geoquiz/internal/session"
	"geoquiz/internal/survey"
)

func main() {
	cfg := app.LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg app.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	variant, err := flow.ParseVariant(cfg.FlowVariant)
	if err != nil {
		return err
	}
	instrument, err := survey.Load(cfg.SurveyFile)
	if err != nil {
		return err
	}

	collector := observability.NewCollector(log, session.CookieName)
	store, closeStore, err := app.NewStore(ctx, cfg, collector, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	loader := bank.NewLoader(nil, log, bank.LoaderConfig{})
	controller := flow.NewController(variant, instrument, loader.Source(cfg.BankPath))

	reports := report.NewService(cfg.ExportDir)
	mailer := app.NewMailer(cfg)
	if mailer == nil || cfg.ReportRecipient == "" {
		log.Warn("mail delivery disabled", "smtp_host_set", cfg.SMTPHost != "", "mail_to_set", cfg.ReportRecipient != "")
	}
	finalizer := session.NewFinalizer(reports, mailer, cfg.ReportRecipient, log)
	sessions := session.NewService(controller, store, app.CountOutcomes(finalizer, collector), log)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: app.NewRouter(cfg, app.Deps{
			Log:       log,
			Sessions:  sessions,
			Reports:   reports,
			Collector: collector,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("geoquiz web listening", "addr", cfg.HTTPAddr, "variant", variant, "bank", cfg.BankPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
