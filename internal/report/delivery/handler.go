package delivery

import (
	"net/http"
	"time"

	authdelivery "github.com/kdrangari/msgtracker-api/internal/auth/delivery"
	reportdto "github.com/kdrangari/msgtracker-api/internal/report/dto"
	"github.com/kdrangari/msgtracker-api/internal/report/usecase"
	"github.com/kdrangari/msgtracker-api/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportUsecase usecase.ReportUsecase
}

func NewReportHandler(reportUsecase usecase.ReportUsecase) *ReportHandler {
	return &ReportHandler{
		reportUsecase: reportUsecase,
	}
}

func filterFrom(c *gin.Context) (reportdto.Filter, error) {
	user := authdelivery.CurrentUser(c)
	return reportdto.ParseFilter(user.ID, c.Query("from"), c.Query("to"), c.Query("provider"), c.Query("q"), time.Now())
}

func (h *ReportHandler) Overview(c *gin.Context) {
	f, err := filterFrom(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.reportUsecase.Overview(c.Request.Context(), f)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) Links(c *gin.Context) {
	f, err := filterFrom(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.reportUsecase.Links(c.Request.Context(), f)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) Attachments(c *gin.Context) {
	f, err := filterFrom(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.reportUsecase.Attachments(c.Request.Context(), f)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) Events(c *gin.Context) {
	f, err := filterFrom(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.reportUsecase.Events(c.Request.Context(), f)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
