package equipment

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/validation"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func RegisterRoutes(r gin.IRoutes, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}

	r.GET("/equipment", h.List)
	r.POST("/equipment", h.Register)
	r.GET("/equipment/:id", h.Get)
	r.PUT("/equipment/:id", h.Update)
	r.DELETE("/equipment/:id", h.Remove)
	r.PATCH("/equipment/:id/status", h.SetStatus)
	r.POST("/equipment/labels", h.Labels)
}

// ---------- handlers ----------

// Register godoc
// @Summary   Register a notebook
// @Tags      equipment
// @Security  BearerAuth
// @Param     body  body      RegisterRequest  true  "equipment"
// @Success   201   {object}  EquipmentResponse
// @Failure   409   {object}  apperr.ErrorDTO
// @Router    /equipment [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.BindError(err))
		return
	}
	res, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.Header("Location", "/equipment/"+strconv.FormatInt(res.ID, 10))
	c.JSON(http.StatusCreated, res)
}

// List godoc
// @Summary   List notebooks
// @Tags      equipment
// @Security  BearerAuth
// @Success   200  {array}  EquipmentResponse
// @Router    /equipment [get]
func (h *Handler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.BindError(err))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SetStatus godoc
// @Summary   Enable or disable a notebook
// @Tags      equipment
// @Security  BearerAuth
// @Param     id    path      int               true  "equipment id"
// @Param     body  body      SetStatusRequest  true  "target status"
// @Success   200   {object}  EquipmentResponse
// @Failure   409   {object}  apperr.ErrorDTO
// @Router    /equipment/{id}/status [patch]
func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.BindError(err))
		return
	}
	res, err := h.svc.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Remove(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Remove(c.Request.Context(), id); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Labels godoc
// @Summary   Label printer CSV for the selected notebooks
// @Tags      equipment
// @Security  BearerAuth
// @Param     body  body  LabelsRequest  true  "equipment ids"
// @Produce   text/csv
// @Success   200
// @Router    /equipment/labels [post]
func (h *Handler) Labels(c *gin.Context) {
	var req LabelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.BindError(err))
		return
	}
	var buf bytes.Buffer
	n, err := h.svc.Labels(c.Request.Context(), req.IDs, &buf)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	h.log.Info("labels exported", zap.Int("count", n))
	c.Header("Content-Disposition", `attachment; filename="labels.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=windows-1252", buf.Bytes())
}

// ---------- helpers ----------

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apperr.Respond(c, h.log, apperr.InvalidField("id", "id must be a positive integer"))
		return 0, false
	}
	return id, true
}
