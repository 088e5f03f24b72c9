package delivery

import (
	"context"
	"log"
	"net/http"
	"time"

	authdelivery "github.com/kdrangari/msgtracker-api/internal/auth/delivery"
	wadto "github.com/kdrangari/msgtracker-api/internal/whatsapp/dto"
	"github.com/kdrangari/msgtracker-api/internal/whatsapp/usecase"
	"github.com/kdrangari/msgtracker-api/pkg/apperror"
	"github.com/kdrangari/msgtracker-api/pkg/whatsapp"

	"github.com/gin-gonic/gin"
)

const webhookTimeout = 30 * time.Second

type WhatsAppHandler struct {
	whatsAppUsecase usecase.WhatsAppUsecase
}

func NewWhatsAppHandler(whatsAppUsecase usecase.WhatsAppUsecase) *WhatsAppHandler {
	return &WhatsAppHandler{
		whatsAppUsecase: whatsAppUsecase,
	}
}

func (h *WhatsAppHandler) Status(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	resp, err := h.whatsAppUsecase.GetStatus(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *WhatsAppHandler) SendText(c *gin.Context) {
	var req wadto.SendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := authdelivery.CurrentUser(c)
	resp, err := h.whatsAppUsecase.SendText(c.Request.Context(), user.ID, &req)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *WhatsAppHandler) SendDocument(c *gin.Context) {
	var req wadto.SendDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := authdelivery.CurrentUser(c)
	resp, err := h.whatsAppUsecase.SendDocument(c.Request.Context(), user.ID, &req)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyWebhook handles the GET subscription handshake.
func (h *WhatsAppHandler) VerifyWebhook(c *gin.Context) {
	challenge, ok := h.whatsAppUsecase.VerifyWebhook(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if !ok {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook acknowledges first and correlates in the background, so a
// slow store never makes Meta redeliver.
func (h *WhatsAppHandler) ReceiveWebhook(c *gin.Context) {
	var payload whatsapp.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("[WhatsApp] Ignoring malformed webhook body: %v", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[WhatsApp] Webhook processing panicked: %v", r)
			}
		}()
		h.whatsAppUsecase.HandleWebhook(ctx, &payload)
	}()

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
