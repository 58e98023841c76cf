package loans

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/validation"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
	log *zap.Logger
}

func RegisterRoutes(r gin.IRoutes, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}

	// 1. 貸出リソース
	r.GET("/loans", h.ListLoans)
	r.POST("/loans", h.CreateLoan)
	r.GET("/loans/options", h.Options)
	r.GET("/loans/export", h.Export)

	// :key は数値ID または ULID
	r.GET("/loans/:key", h.GetLoan)
	r.DELETE("/loans/:key", h.DeleteLoan)
	r.PATCH("/loans/:key/close", h.CloseLoan)

	// 2. 保守
	r.POST("/maintenance/reconcile", h.Reconcile)
}

// ---------- handlers ----------

// CreateLoan godoc
// @Summary   Lend a notebook
// @Tags      loans
// @Security  BearerAuth
// @Param     body  body      CreateLoanRequest  true  "loan"
// @Success   201   {object}  LoanResponse
// @Failure   400   {object}  apperr.ErrorDTO
// @Failure   409   {object}  apperr.ErrorDTO
// @Router    /loans [post]
func (h *Handler) CreateLoan(c *gin.Context) {
	var req CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.BindError(err))
		return
	}

	res, err := h.svc.CreateLoan(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	c.Header("Location", "/loans/"+res.LoanULID)
	c.JSON(http.StatusCreated, res)
}

// ListLoans godoc
// @Summary   List loans
// @Tags      loans
// @Security  BearerAuth
// @Param     status  query  string  false  "open or closed"
// @Success   200  {array}  LoanResponse
// @Router    /loans [get]
func (h *Handler) ListLoans(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	res, err := h.svc.ListLoans(c.Request.Context(), f)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetLoan(c *gin.Context) {
	res, err := h.svc.GetLoan(c.Request.Context(), c.Param("key"))
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CloseLoan godoc
// @Summary   Register the return of a notebook
// @Tags      loans
// @Security  BearerAuth
// @Param     key   path      string            true  "loan id or ULID"
// @Param     body  body      CloseLoanRequest  false "return notes"
// @Success   200   {object}  LoanResponse
// @Failure   404   {object}  apperr.ErrorDTO
// @Failure   409   {object}  apperr.ErrorDTO
// @Router    /loans/{key}/close [patch]
func (h *Handler) CloseLoan(c *gin.Context) {
	var req CloseLoanRequest
	// 本文なしも許可する
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, h.log, validation.BindError(err))
			return
		}
	}
	res, err := h.svc.CloseLoan(c.Request.Context(), c.Param("key"), req.ReturnNotes)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteLoan(c *gin.Context) {
	if err := h.svc.DeleteLoan(c.Request.Context(), c.Param("key")); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Options(c *gin.Context) {
	res, err := h.svc.LoanOptions(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Export godoc
// @Summary   Download loans as an xlsx workbook
// @Tags      loans
// @Security  BearerAuth
// @Param     status  query  string  false  "open or closed"
// @Produce   application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success   200
// @Router    /loans/export [get]
func (h *Handler) Export(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	// 失敗時にエラーJSONを返せるよう一旦バッファに書く
	var buf bytes.Buffer
	if err := h.svc.Export(c.Request.Context(), f, &buf); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	name := "loans"
	if f.Status != nil {
		name += "-" + *f.Status
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Reconcile godoc
// @Summary   Repair equipment status drift
// @Tags      maintenance
// @Security  BearerAuth
// @Success   200  {object}  ReconcileResult
// @Router    /maintenance/reconcile [post]
func (h *Handler) Reconcile(c *gin.Context) {
	res, err := h.svc.Reconcile(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func (h *Handler) filter(c *gin.Context) (ListFilter, bool) {
	var f ListFilter
	if v := c.Query("status"); v != "" {
		if v != StatusOpen && v != StatusClosed {
			apperr.Respond(c, h.log, apperr.InvalidField("status", "status must be open or closed"))
			return f, false
		}
		f.Status = &v
	}
	return f, true
}
