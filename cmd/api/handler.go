package api

import (
	authRepo "github.com/kdrangari/msgtracker-api/internal/auth/repository"
	gmailDelivery "github.com/kdrangari/msgtracker-api/internal/gmail/delivery"
	gmailUsecase "github.com/kdrangari/msgtracker-api/internal/gmail/usecase"
	reportDelivery "github.com/kdrangari/msgtracker-api/internal/report/delivery"
	reportUsecase "github.com/kdrangari/msgtracker-api/internal/report/usecase"
	waDelivery "github.com/kdrangari/msgtracker-api/internal/whatsapp/delivery"
	waUsecase "github.com/kdrangari/msgtracker-api/internal/whatsapp/usecase"
	"github.com/kdrangari/msgtracker-api/pkg/metrics"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	userRepo        authRepo.UserRepository
	recorder        metrics.Recorder
	gmailHandler    *gmailDelivery.GmailHandler
	whatsAppHandler *waDelivery.WhatsAppHandler
	reportHandler   *reportDelivery.ReportHandler
}

func NewHandler(userRepo authRepo.UserRepository, gmailUc gmailUsecase.GmailUsecase, waUc waUsecase.WhatsAppUsecase, reportUc reportUsecase.ReportUsecase, recorder metrics.Recorder) *Handler {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &Handler{
		userRepo:        userRepo,
		recorder:        recorder,
		gmailHandler:    gmailDelivery.NewGmailHandler(gmailUc),
		whatsAppHandler: waDelivery.NewWhatsAppHandler(waUc),
		reportHandler:   reportDelivery.NewReportHandler(reportUc),
	}
}

// Engine builds the router with middleware and routes installed.
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-Email")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	r.Use(metrics.HTTPMiddleware(h.recorder))

	SetupRoutes(r, h.userRepo, h.gmailHandler, h.whatsAppHandler, h.reportHandler, h.recorder)
	return r
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	return h.Engine().Run(addr)
}
