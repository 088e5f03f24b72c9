package main

import (
	"context"
	"log"

	api "github.com/kdrangari/msgtracker-api/cmd/api"
	authdomain "github.com/kdrangari/msgtracker-api/internal/auth/domain"
	authRepo "github.com/kdrangari/msgtracker-api/internal/auth/repository"
	eventdomain "github.com/kdrangari/msgtracker-api/internal/event/domain"
	eventRepo "github.com/kdrangari/msgtracker-api/internal/event/repository"
	eventUsecase "github.com/kdrangari/msgtracker-api/internal/event/usecase"
	gmailScheduler "github.com/kdrangari/msgtracker-api/internal/gmail/scheduler"
	gmailUsecase "github.com/kdrangari/msgtracker-api/internal/gmail/usecase"
	integrationdomain "github.com/kdrangari/msgtracker-api/internal/integration/domain"
	integrationRepo "github.com/kdrangari/msgtracker-api/internal/integration/repository"
	"github.com/kdrangari/msgtracker-api/internal/notification"
	reportRepo "github.com/kdrangari/msgtracker-api/internal/report/repository"
	reportUsecase "github.com/kdrangari/msgtracker-api/internal/report/usecase"
	waUsecase "github.com/kdrangari/msgtracker-api/internal/whatsapp/usecase"
	"github.com/kdrangari/msgtracker-api/pkg/config"
	"github.com/kdrangari/msgtracker-api/pkg/database"
	"github.com/kdrangari/msgtracker-api/pkg/eventbus"
	"github.com/kdrangari/msgtracker-api/pkg/gmail"
	"github.com/kdrangari/msgtracker-api/pkg/metrics"
	"github.com/kdrangari/msgtracker-api/pkg/utils/crypto"
	"github.com/kdrangari/msgtracker-api/pkg/whatsapp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&integrationdomain.Integration{},
		&integrationdomain.OAuthToken{},
		&eventdomain.Event{},
		&eventdomain.Link{},
		&eventdomain.EventLink{},
		&eventdomain.Attachment{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	sealer, err := crypto.NewSealer(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize token sealer:", err)
	}
	if cfg.TokenEncryptionKey == "" {
		log.Printf("[WARN] TOKEN_ENCRYPTION_KEY not set, OAuth tokens are stored unencrypted")
	}

	// Initialize repositories (dependency injection)
	userRepository := authRepo.NewUserRepository(db)
	integrationRepository := integrationRepo.NewIntegrationRepository(db, sealer)
	eventRepository := eventRepo.NewEventRepository(db)
	reportRepository := reportRepo.NewReportRepository(db)

	recorder := metrics.Init(cfg.MetricsEnabled)

	// Event fan-out is optional
	var publisher eventbus.Publisher = eventbus.NewNoopPublisher()
	if cfg.NATSURL != "" {
		js, err := eventbus.NewJetStreamPublisher(cfg.NATSURL)
		if err != nil {
			log.Printf("[WARN] NATS unavailable, event fan-out disabled: %v", err)
		} else if err := js.EnsureStream(); err != nil {
			log.Printf("[WARN] Failed to ensure NATS stream, event fan-out disabled: %v", err)
			js.Close()
		} else {
			log.Printf("[NATS] Publishing events to stream %s", eventbus.StreamName)
			publisher = js
		}
	}
	defer publisher.Close()

	// Initialize use cases (dependency injection)
	ingestUsecaseInstance := eventUsecase.NewIngestUsecase(eventRepository, recorder, publisher)

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	stateSigner := gmailUsecase.NewStateSigner(cfg.AppJWTSecret, cfg.OAuthStateExpiry)
	gmailUsecaseInstance := gmailUsecase.NewGmailUsecase(gmailService, integrationRepository, ingestUsecaseInstance, stateSigner, recorder, cfg.GmailPubSubTopic)

	if cfg.GmailPubSubTopic != "" {
		watchScheduler := gmailScheduler.NewWatchRenewalScheduler(gmailUsecaseInstance, cfg.WatchRenewInterval, cfg.WatchRenewWindow)
		watchScheduler.Start()
		defer watchScheduler.Stop()
	}

	whatsAppClient := whatsapp.NewClient(cfg.WhatsAppGraphBaseURL, cfg.WhatsAppGraphVersion, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAccessToken, nil)
	whatsAppUsecaseInstance := waUsecase.NewWhatsAppUsecase(whatsAppClient, integrationRepository, ingestUsecaseInstance, cfg.WhatsAppWebhookVerifyToken)

	reportUsecaseInstance := reportUsecase.NewReportUsecase(reportRepository)

	// Pull subscription for Gmail notifications. Push delivery to
	// /api/gmail/webhook/pubsub works without it.
	if cfg.GoogleProjectID != "" && cfg.GmailPubSubTopic != "" {
		log.Printf("[DEBUG] Initializing notification service with projectID: %s", cfg.GoogleProjectID)

		notifService, err := notification.NewService(cfg.GoogleProjectID, cfg.GmailPubSubTopic, cfg.GmailPubSubSubscription, gmailUsecaseInstance, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			defer notifService.Close()
			go notifService.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GOOGLE_PROJECT_ID or GMAIL_PUBSUB_TOPIC not configured, pull subscription disabled")
	}

	// Initialize HTTP handler
	handler := api.NewHandler(userRepository, gmailUsecaseInstance, whatsAppUsecaseInstance, reportUsecaseInstance, recorder)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
