// Command syncd runs the periodic calendar reconciliation daemon.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/plannerhq/schedsync/internal/config"
	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/oauth"
	"github.com/plannerhq/schedsync/internal/outbox"
	"github.com/plannerhq/schedsync/internal/persistence/postgres"
	"github.com/plannerhq/schedsync/internal/provider"
	"github.com/plannerhq/schedsync/internal/provider/googlecal"
	"github.com/plannerhq/schedsync/internal/provider/msgraph"
	"github.com/plannerhq/schedsync/internal/scheduler"
	syncpkg "github.com/plannerhq/schedsync/internal/sync"
)

func main() {
	logger := log.New(os.Stdout, "[syncd] ", log.LstdFlags)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("postgres pool: %v", err)
	}
	defer pool.Close()

	activities := postgres.NewActivityRepository(pool)
	credentials := postgres.NewCredentialRepository(pool)

	googleManager := oauth.NewManager(domain.ProviderGoogle, &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		Scopes:       []string{calendar.CalendarScope},
		Endpoint:     google.Endpoint,
	}, credentials)
	outlookManager := oauth.NewManager(domain.ProviderOutlook, &oauth2.Config{
		ClientID:     cfg.Outlook.ClientID,
		ClientSecret: cfg.Outlook.ClientSecret,
		RedirectURL:  cfg.Outlook.RedirectURL,
		Scopes:       []string{"offline_access", "Calendars.ReadWrite"},
		Endpoint:     microsoft.AzureADEndpoint(cfg.Outlook.TenantID),
	}, credentials)

	reconciler := syncpkg.NewReconciler(activities, map[domain.Provider]syncpkg.Binding{
		domain.ProviderGoogle: {
			Adapter: googlecal.New(),
			Tokens:  googleManager,
			Window:  provider.Window{Back: cfg.GoogleWindowBack, Forward: cfg.GoogleWindowForward},
		},
		domain.ProviderOutlook: {
			Adapter: msgraph.New(msgraph.ClientOptions{}),
			Tokens:  outlookManager,
			Window:  provider.Window{Back: cfg.OutlookWindowBack, Forward: cfg.OutlookWindowForward},
		},
	}, syncpkg.WithRecorder(activities))

	sched, err := scheduler.New(reconciler, credentials, cfg.SyncSchedule)
	if err != nil {
		logger.Fatalf("scheduler: %v", err)
	}

	// The daemon writes sync-completed events through the outbox, so
	// it drains its own share; SKIP LOCKED keeps this safe alongside
	// the API's dispatcher.
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	sched.Start()
	logger.Printf("sync schedule %q", cfg.SyncSchedule)

	<-ctx.Done()
	logger.Println("shutting down")
	sched.Stop()
	dispatcher.Wait()
}
