package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notebook-lending/internal/platform/auth"
	"notebook-lending/internal/platform/clock"
	"notebook-lending/internal/platform/config"
	"notebook-lending/internal/platform/db/dbtest"
	"notebook-lending/internal/platform/metrics"
	"notebook-lending/internal/platform/validation"
)

type harness struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	require.NoError(t, validation.Register())

	conn := dbtest.Open(t)
	clk := clock.NewFixed(time.Date(2025, 5, 7, 15, 0, 0, 0, time.UTC))
	cfg := &config.Config{
		Mode: config.ModeRelease,
		Auth: config.AuthConfig{Secret: "test-secret", Issuer: "notebook-lending", TokenTTL: time.Hour, DefaultPassword: "123456"},
		Lending: config.LendingConfig{
			Timezone: "UTC",
			Locale:   "pt-BR",
		},
	}
	app := New(cfg, Deps{
		DB:      conn,
		Clock:   clk,
		Revoker: auth.NewMemoryRevoker(clk.Now),
		Metrics: metrics.New(),
		Log:     zap.NewNop(),
	})
	_, err := app.People.EnsurePrimaryAdmin(context.Background(), config.AdminSeed{
		Name: "Root", Email: "root@example.com", Password: "rootpass",
	})
	require.NoError(t, err)

	return &harness{t: t, router: app.Router}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) decode(w *httptest.ResponseRecorder, v any) {
	h.t.Helper()
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (h *harness) errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"error"`
	}
	h.decode(w, &body)
	return body.Error.Code
}

func (h *harness) login() {
	w := h.do(http.MethodPost, "/api/v1/auth/login", `{"email":"root@example.com","password":"rootpass"}`)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Token string `json:"token"`
	}
	h.decode(w, &res)
	require.NotEmpty(h.t, res.Token)
	h.token = res.Token
}

func TestPublicEndpoints(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/v1/loans", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", h.errorCode(w))

	w = h.do(http.MethodGet, "/api/v1/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// swagger は dev モードのみ
	w = h.do(http.MethodGet, "/swagger/index.html", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLendingScenarioOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.login()

	w := h.do(http.MethodPost, "/api/v1/people", `{"full_name":"Paula Lima","national_id":"529.982.247-25","kind":"standard"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var person struct {
		ID int64 `json:"id"`
	}
	h.decode(w, &person)

	w = h.do(http.MethodPost, "/api/v1/equipment", `{"tag":"NB-001","serial":"SN-1","model":"Inspiron 15","brand":"Dell"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var item struct {
		ID int64 `json:"id"`
	}
	h.decode(w, &item)

	w = h.do(http.MethodPost, "/api/v1/equipment", `{"tag":"NB-001","serial":"SN-2","model":"Inspiron 15","brand":"Dell"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_EXISTS", h.errorCode(w))

	loanBody := `{"person_id":` + itoa(person.ID) + `,"equipment_id":` + itoa(item.ID) +
		`,"loan_date":"2025-05-07","loan_time":"08:00","due_date":"2025-05-07","due_time":"17:00","accessories":["Charger"]}`
	w = h.do(http.MethodPost, "/api/v1/loans", loanBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var loan struct {
		ID       int64  `json:"id"`
		LoanULID string `json:"loan_ulid"`
		Status   string `json:"status"`
	}
	h.decode(w, &loan)
	assert.Equal(t, "open", loan.Status)
	assert.Equal(t, "/loans/"+loan.LoanULID, w.Header().Get("Location"))

	w = h.do(http.MethodPost, "/api/v1/loans", loanBody)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", h.errorCode(w))

	w = h.do(http.MethodPatch, "/api/v1/people/"+itoa(person.ID)+"/status", `{"active":false}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/api/v1/stats/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Equipment struct {
			Loaned int64 `json:"loaned"`
		} `json:"equipment"`
	}
	h.decode(w, &summary)
	assert.EqualValues(t, 1, summary.Equipment.Loaned)

	w = h.do(http.MethodGet, "/api/v1/loans/export?status=open", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "loans-open.xlsx")

	w = h.do(http.MethodPatch, "/api/v1/loans/"+loan.LoanULID+"/close", `{"return_notes":"ok"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodPatch, "/api/v1/loans/"+itoa(loan.ID)+"/close", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/api/v1/loans?status=closed", "")
	require.Equal(t, http.StatusOK, w.Code)
	var closed []map[string]any
	h.decode(w, &closed)
	assert.Len(t, closed, 1)

	w = h.do(http.MethodGet, "/api/v1/loans?status=late", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/api/v1/stats/weekly-activity", "")
	require.Equal(t, http.StatusOK, w.Code)
	var weekly struct {
		Labels []string `json:"labels"`
		Data   []int    `json:"data"`
	}
	h.decode(w, &weekly)
	assert.Equal(t, []int{0, 0, 1, 0, 0}, weekly.Data)

	w = h.do(http.MethodPost, "/api/v1/maintenance/reconcile", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodDelete, "/api/v1/people/1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `lending_loan_events_total{event="created"} 1`)

	w = h.do(http.MethodPost, "/api/v1/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(http.MethodGet, "/api/v1/loans", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidationErrorNamesField(t *testing.T) {
	h := newHarness(t)
	h.login()

	w := h.do(http.MethodPost, "/api/v1/loans", `{"person_id":1,"equipment_id":1,"loan_date":"07/05/2025","loan_time":"08:00","due_date":"2025-05-07","due_time":"17:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"error"`
	}
	h.decode(w, &body)
	assert.Equal(t, "INVALID_ARGUMENT", body.Error.Code)
	assert.Equal(t, "loan_date", body.Error.Field)
}

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
