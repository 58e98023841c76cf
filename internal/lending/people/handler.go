package people

import (
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

	r.GET("/people", h.List)
	r.POST("/people", h.Create)
	r.GET("/people/:id", h.Get)
	r.PUT("/people/:id", h.Update)
	r.DELETE("/people/:id", h.Delete)
	// 有効/無効は目標状態を明示する
	r.PATCH("/people/:id/status", h.SetActive)
}

// List godoc
// @Summary   List people
// @Tags      people
// @Security  BearerAuth
// @Param     kind    query  string  false  "admin or standard"
// @Param     active  query  bool    false  "filter by active flag"
// @Success   200  {array}   PersonResponse
// @Router    /people [get]
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	if v := c.Query("kind"); v != "" {
		if v != KindAdmin && v != KindStandard {
			apperr.Respond(c, h.log, apperr.InvalidField("kind", "kind must be admin or standard"))
			return
		}
		f.Kind = &v
	}
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			apperr.Respond(c, h.log, apperr.InvalidField("active", "active must be a boolean"))
			return
		}
		f.Active = &b
	}

	res, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Create godoc
// @Summary   Register a person
// @Tags      people
// @Security  BearerAuth
// @Param     body  body      CreatePersonRequest  true  "person"
// @Success   201   {object}  PersonResponse
// @Failure   409   {object}  apperr.ErrorDTO
// @Router    /people [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.BindError(err))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.Header("Location", "/people/"+strconv.FormatInt(res.ID, 10))
	c.JSON(http.StatusCreated, res)
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
	var req UpdatePersonRequest
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

func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetActive godoc
// @Summary   Activate or deactivate a person
// @Tags      people
// @Security  BearerAuth
// @Param     id    path      int               true  "person id"
// @Param     body  body      SetActiveRequest  true  "target state"
// @Success   200   {object}  PersonResponse
// @Failure   409   {object}  apperr.ErrorDTO
// @Router    /people/{id}/status [patch]
func (h *Handler) SetActive(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.BindError(err))
		return
	}
	res, err := h.svc.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apperr.Respond(c, h.log, apperr.InvalidField("id", "id must be a positive integer"))
		return 0, false
	}
	return id, true
}
