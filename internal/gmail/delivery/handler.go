package delivery

import (
	"context"
	"log"
	"net/http"
	"time"

	authdelivery "github.com/kdrangari/msgtracker-api/internal/auth/delivery"
	gmaildto "github.com/kdrangari/msgtracker-api/internal/gmail/dto"
	"github.com/kdrangari/msgtracker-api/internal/gmail/usecase"
	"github.com/kdrangari/msgtracker-api/pkg/apperror"

	"github.com/gin-gonic/gin"
)

const pushSyncTimeout = 5 * time.Minute

type GmailHandler struct {
	gmailUsecase usecase.GmailUsecase
}

func NewGmailHandler(gmailUsecase usecase.GmailUsecase) *GmailHandler {
	return &GmailHandler{
		gmailUsecase: gmailUsecase,
	}
}

// StartAuth handles GET /gmail/auth/start.
func (h *GmailHandler) StartAuth(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	url, err := h.gmailUsecase.BuildAuthURL(user.ID)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gmaildto.AuthURLResponse{URL: url})
}

// Callback handles the OAuth redirect. The user comes from the signed state,
// not the request headers.
func (h *GmailHandler) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization denied: " + errParam})
		return
	}

	resp, err := h.gmailUsecase.HandleOAuthCallback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		log.Printf("[Gmail] OAuth callback failed: %v", err)
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *GmailHandler) Watch(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	resp, err := h.gmailUsecase.EnsureWatch(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *GmailHandler) Status(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	resp, err := h.gmailUsecase.GetStatus(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PubSubPush handles Pub/Sub push deliveries. It acknowledges at once and
// syncs in the background, so a slow sync never runs past the push ack
// deadline. Failures stay in the log.
func (h *GmailHandler) PubSubPush(c *gin.Context) {
	var envelope gmaildto.PushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Printf("[Gmail] Ignoring malformed push envelope: %v", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, pushSyncTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Gmail] Push processing panicked: %v", r)
			}
		}()
		if _, err := h.gmailUsecase.HandlePushEnvelope(ctx, &envelope); err != nil {
			log.Printf("[Gmail] Push notification %s failed: %v", envelope.Message.MessageID, err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
