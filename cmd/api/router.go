package api

import (
	"net/http"

	"github.com/kdrangari/msgtracker-api/internal/auth/delivery"
	authRepo "github.com/kdrangari/msgtracker-api/internal/auth/repository"
	gmailDelivery "github.com/kdrangari/msgtracker-api/internal/gmail/delivery"
	reportDelivery "github.com/kdrangari/msgtracker-api/internal/report/delivery"
	waDelivery "github.com/kdrangari/msgtracker-api/internal/whatsapp/delivery"
	"github.com/kdrangari/msgtracker-api/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(r *gin.Engine, userRepo authRepo.UserRepository, gmailHandler *gmailDelivery.GmailHandler, whatsAppHandler *waDelivery.WhatsAppHandler, reportHandler *reportDelivery.ReportHandler, recorder metrics.Recorder) {
	if _, ok := recorder.(*metrics.Metrics); ok {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(delivery.UserContextMiddleware(userRepo))
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		api.GET("/me", delivery.Me)

		// Gmail routes. The OAuth callback and Pub/Sub push carry no user header.
		gmail := api.Group("/gmail")
		{
			gmail.GET("/auth/start", delivery.RequireUser(), gmailHandler.StartAuth)
			gmail.GET("/auth/callback", gmailHandler.Callback)
			gmail.POST("/watch", delivery.RequireUser(), gmailHandler.Watch)
			gmail.GET("/status", delivery.RequireUser(), gmailHandler.Status)
			gmail.POST("/webhook/pubsub", gmailHandler.PubSubPush)
		}

		// WhatsApp routes. The webhook is called by Meta.
		whatsapp := api.Group("/whatsapp")
		{
			whatsapp.GET("/webhook", whatsAppHandler.VerifyWebhook)
			whatsapp.POST("/webhook", whatsAppHandler.ReceiveWebhook)
			whatsapp.GET("/status", delivery.RequireUser(), whatsAppHandler.Status)
			whatsapp.POST("/send/text", delivery.RequireUser(), whatsAppHandler.SendText)
			whatsapp.POST("/send/document", delivery.RequireUser(), whatsAppHandler.SendDocument)
		}

		// Report routes (protected)
		reports := api.Group("/reports")
		reports.Use(delivery.RequireUser())
		{
			reports.GET("/overview", reportHandler.Overview)
			reports.GET("/links", reportHandler.Links)
			reports.GET("/attachments", reportHandler.Attachments)
			reports.GET("/events", reportHandler.Events)
		}
	}
}
