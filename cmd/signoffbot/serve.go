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

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/release-signoff/internal/config"
	"github.com/example/release-signoff/internal/coordinator"
	httptransport "github.com/example/release-signoff/internal/http"
	"github.com/example/release-signoff/internal/logging"
	"github.com/example/release-signoff/internal/notify"
	"github.com/example/release-signoff/internal/persistence"
	"github.com/example/release-signoff/internal/persistence/sqlite"
	"github.com/example/release-signoff/internal/release"
	"github.com/example/release-signoff/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sign-off bot HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (environment overrides it)")
	return cmd
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	journalStore, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if cerr := journalStore.Close(); cerr != nil {
			logger.Error("failed to close journal", "error", cerr)
		}
	}()
	if err := journalStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}

	sink := notify.NewSlackSink(cfg.SlackBotToken, logger,
		notify.WithBaseURL(cfg.SlackAPIBaseURL),
		notify.WithTimeout(cfg.SinkTimeout),
	)

	store := release.NewStore()
	sched := scheduler.NewTimerScheduler(time.Now, logger)
	defer sched.Stop()

	svc := coordinator.NewCoordinatorWithLogger(
		store,
		sched,
		sink,
		newJournalAdapter(journalStore),
		coordinator.Config{
			ReminderInterval:       cfg.ReminderInterval,
			ReminderRetryDelay:     cfg.ReminderRetryDelay,
			CutoffDeliveryAttempts: cfg.CutoffDeliveryAttempts,
			CutoffRetryBackoff:     cfg.CutoffRetryBackoff,
		},
		time.Now,
		logger,
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Releases:    httptransport.NewReleaseHandler(svc, logger),
		Events:      httptransport.NewEventHandler(svc, logger),
		Slack:       httptransport.NewSlackHandler(svc, sink, logger),
		Health:      healthAdapter{store: store},
		TriggerAuth: httptransport.RequireTriggerToken(cfg.TriggerTokenHash, logger),
		SlackVerify: httptransport.VerifySlackSignature(cfg.SlackSigningSecret, logger),
	})
	handler := httptransport.RequestLogger(logger)(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("sign-off bot listening", "addr", server.Addr, "default_channel", cfg.DefaultChannel)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// healthAdapter exposes the live session count to the health endpoint.
type healthAdapter struct {
	store *release.Store
}

func (h healthAdapter) ActiveSessions() int {
	return h.store.Len()
}

// journalAdapter maps coordinator lifecycle callbacks onto the durable journal,
// minting an id per event.
type journalAdapter struct {
	journal persistence.Journal
}

func newJournalAdapter(journal persistence.Journal) *journalAdapter {
	return &journalAdapter{journal: journal}
}

func (a *journalAdapter) SessionStarted(ctx context.Context, session *release.Session) error {
	items := make([]persistence.ItemRecord, len(session.Items))
	for i, item := range session.Items {
		items[i] = persistence.ItemRecord{ID: item.ID, Title: item.Title, Author: item.Author}
	}
	return a.journal.RecordSessionStarted(ctx, persistence.SessionRecord{
		SessionKey:        session.SessionKey,
		ServiceName:       session.ServiceName,
		Version:           session.Version,
		Day1Date:          session.Day1Date,
		Day2Date:          session.Day2Date,
		Destination:       session.Destination,
		CoordinatorHandle: session.CoordinatorHandle,
		CutoffTime:        session.CutoffTime,
		CreatedAt:         session.CreatedAt,
		Items:             items,
	})
}

func (a *journalAdapter) AuthorAcknowledged(ctx context.Context, sessionKey, author string, at time.Time) error {
	return a.journal.RecordEvent(ctx, persistence.EventRecord{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		Kind:       persistence.EventAcknowledged,
		Author:     author,
		OccurredAt: at,
	})
}

func (a *journalAdapter) SessionResolved(ctx context.Context, sessionKey, outcome string, pendingAuthors []string, at time.Time) error {
	return a.journal.RecordEvent(ctx, persistence.EventRecord{
		ID:             uuid.NewString(),
		SessionKey:     sessionKey,
		Kind:           persistence.EventResolved,
		Outcome:        outcome,
		PendingAuthors: pendingAuthors,
		OccurredAt:     at,
	})
}
