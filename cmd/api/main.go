// Command api serves the schedule HTTP API and drains the outbox.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/plannerhq/schedsync/internal/api"
	"github.com/plannerhq/schedsync/internal/auth"
	"github.com/plannerhq/schedsync/internal/config"
	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/oauth"
	"github.com/plannerhq/schedsync/internal/outbox"
	"github.com/plannerhq/schedsync/internal/persistence/postgres"
	"github.com/plannerhq/schedsync/internal/provider"
	"github.com/plannerhq/schedsync/internal/provider/googlecal"
	"github.com/plannerhq/schedsync/internal/provider/msgraph"
	syncpkg "github.com/plannerhq/schedsync/internal/sync"
	httptransport "github.com/plannerhq/schedsync/internal/transport/http"
)

func main() {
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags)
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
	service := domain.NewService(activities)

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

	googleAdapter := googlecal.New()
	reconciler := syncpkg.NewReconciler(activities, map[domain.Provider]syncpkg.Binding{
		domain.ProviderGoogle: {
			Adapter: googleAdapter,
			Tokens:  googleManager,
			Window:  provider.Window{Back: cfg.GoogleWindowBack, Forward: cfg.GoogleWindowForward},
		},
		domain.ProviderOutlook: {
			Adapter: msgraph.New(msgraph.ClientOptions{}),
			Tokens:  outlookManager,
			Window:  provider.Window{Back: cfg.OutlookWindowBack, Forward: cfg.OutlookWindowForward},
		},
	}, syncpkg.WithRecorder(activities))

	handler := api.NewHandler(service, reconciler, map[domain.Provider]*oauth.Manager{
		domain.ProviderGoogle:  googleManager,
		domain.ProviderOutlook: outlookManager,
	}, googleAdapter)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	middleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, func(r *http.Request) bool {
		return r.URL.Path == "/metrics" || api.SkipAuth(r)
	})
	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTPAddress}, requestLog(logger, middleware.Wrap(mux)))

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	dispatcher.Wait()
}

func requestLog(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
