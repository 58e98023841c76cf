package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notebook-lending/internal/platform/apperr"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func RegisterRoutes(r gin.IRoutes, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}
	r.GET("/stats/summary", h.Summary)
	r.GET("/stats/weekly-activity", h.Weekly)
}

// Summary godoc
// @Summary   Dashboard counts
// @Tags      stats
// @Security  BearerAuth
// @Success   200  {object}  Summary
// @Router    /stats/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	res, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Weekly godoc
// @Summary   Loans started per weekday over the last seven days
// @Tags      stats
// @Security  BearerAuth
// @Success   200  {object}  loans.WeeklyActivity
// @Router    /stats/weekly-activity [get]
func (h *Handler) Weekly(c *gin.Context) {
	res, err := h.svc.Weekly(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
