package equipment

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/clock"
	"notebook-lending/internal/platform/db/dbtest"
)

func newService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	clk := clock.NewFixed(time.Date(2025, 5, 5, 8, 30, 0, 0, time.UTC))
	return NewService(conn, clk, zap.NewNop()), conn
}

func register(t *testing.T, svc *Service, tag, serial string) *EquipmentResponse {
	t.Helper()
	year := 2022
	res, err := svc.Register(context.Background(), RegisterRequest{
		Tag: tag, Serial: serial, Model: "ThinkPad E14", Brand: "Lenovo", Year: &year,
	})
	require.NoError(t, err)
	return res
}

func requireCode(t *testing.T, err error, code apperr.Code) *apperr.APIError {
	t.Helper()
	var api *apperr.APIError
	require.True(t, errors.As(err, &api), "got %v", err)
	require.Equal(t, code, api.Code, api.Message)
	return api
}

func markLoaned(t *testing.T, conn *sql.DB, id int64) {
	t.Helper()
	_, err := conn.Exec(`UPDATE equipment SET status = 'loaned' WHERE id = ?`, id)
	require.NoError(t, err)
}

func TestRegisterRoundTripAndDuplicateTag(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created := register(t, svc, "T1", "S1")
	assert.Equal(t, StatusAvailable, created.Status)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "T1", got.Tag)
	assert.Equal(t, "S1", got.Serial)
	assert.Equal(t, "ThinkPad E14", got.Model)
	assert.Equal(t, "Lenovo", got.Brand)
	require.NotNil(t, got.Year)
	assert.Equal(t, 2022, *got.Year)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	_, err = svc.Register(ctx, RegisterRequest{Tag: "T1", Serial: "S2", Model: "m", Brand: "b"})
	assert.Equal(t, "tag", requireCode(t, err, apperr.CodeAlreadyExists).Field)

	_, err = svc.Register(ctx, RegisterRequest{Tag: "T2", Serial: "S1", Model: "m", Brand: "b"})
	assert.Equal(t, "serial", requireCode(t, err, apperr.CodeAlreadyExists).Field)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRegisterRejectsBlankFields(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Register(context.Background(), RegisterRequest{Tag: "  ", Serial: "S", Model: "m", Brand: "b"})
	assert.Equal(t, "tag", requireCode(t, err, apperr.CodeInvalidArgument).Field)

	_, err = svc.Register(context.Background(), RegisterRequest{Tag: "T", Serial: "S", Model: "m"})
	assert.Equal(t, "brand", requireCode(t, err, apperr.CodeInvalidArgument).Field)
}

func TestSetStatusExplicitTarget(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	e := register(t, svc, "T1", "S1")

	res, err := svc.SetStatus(ctx, e.ID, StatusDisabled)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, res.Status)

	// 二回目も同じ結果
	res, err = svc.SetStatus(ctx, e.ID, StatusDisabled)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, res.Status)

	res, err = svc.SetStatus(ctx, e.ID, StatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, res.Status)

	_, err = svc.SetStatus(ctx, e.ID, StatusLoaned)
	requireCode(t, err, apperr.CodeInvalidStateTransition)

	markLoaned(t, conn, e.ID)
	_, err = svc.SetStatus(ctx, e.ID, StatusDisabled)
	requireCode(t, err, apperr.CodeInvalidStateTransition)

	_, err = svc.SetStatus(ctx, 999, StatusDisabled)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestUpdateRespectsStateMachine(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	e := register(t, svc, "T1", "S1")
	register(t, svc, "T2", "S2")

	req := UpdateRequest{Tag: "T1-b", Serial: "S1", Model: "X1", Brand: "Lenovo", Status: StatusDisabled}
	res, err := svc.Update(ctx, e.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "T1-b", res.Tag)
	assert.Equal(t, StatusDisabled, res.Status)
	assert.Nil(t, res.Year)

	req.Status = StatusLoaned
	_, err = svc.Update(ctx, e.ID, req)
	requireCode(t, err, apperr.CodeInvalidStateTransition)

	req.Status = StatusAvailable
	req.Tag = "T2"
	_, err = svc.Update(ctx, e.ID, req)
	assert.Equal(t, "tag", requireCode(t, err, apperr.CodeAlreadyExists).Field)

	markLoaned(t, conn, e.ID)
	req.Tag = "T1-c"
	_, err = svc.Update(ctx, e.ID, req)
	requireCode(t, err, apperr.CodeInvalidStateTransition)

	// 貸出中でもステータス以外は更新できる
	req.Status = StatusLoaned
	res, err = svc.Update(ctx, e.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "T1-c", res.Tag)
	assert.Equal(t, StatusLoaned, res.Status)

	_, err = svc.Update(ctx, 999, req)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestRemove(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	e := register(t, svc, "T1", "S1")

	markLoaned(t, conn, e.ID)
	requireCode(t, svc.Remove(ctx, e.ID), apperr.CodeInvalidStateTransition)

	_, err := conn.Exec(`UPDATE equipment SET status = 'disabled' WHERE id = ?`, e.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, e.ID))

	_, err = svc.Get(ctx, e.ID)
	requireCode(t, err, apperr.CodeNotFound)
	requireCode(t, svc.Remove(ctx, e.ID), apperr.CodeNotFound)
}

func TestCountByStatus(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()

	counts, err := svc.store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{StatusAvailable: 0, StatusLoaned: 0, StatusDisabled: 0}, counts)

	a := register(t, svc, "T1", "S1")
	register(t, svc, "T2", "S2")
	markLoaned(t, conn, a.ID)

	counts, err = svc.store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[StatusAvailable])
	assert.Equal(t, int64(1), counts[StatusLoaned])

	avail, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, "T2", avail[0].Tag)
}

func TestLabelsCSV(t *testing.T) {
	svc, _ := newService(t)
	a := register(t, svc, "NB-002", "SN-2")
	b := register(t, svc, "NB-001", "SN-1")
	ctx := context.Background()

	_, err := svc.Update(ctx, a.ID, UpdateRequest{
		Tag: "NB-002", Serial: "SN-2", Model: "Ideapad Ç ✓", Brand: "Lenovo", Status: StatusAvailable,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := svc.Labels(ctx, []int64{a.ID, b.ID, 999}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Ç は 1 バイト (0xC7)、✓ は '?' になる
	want := "NB-001,ThinkPad E14,SN-1,Lenovo\r\nNB-002,Ideapad \xc7 ?,SN-2,Lenovo\r\n"
	assert.Equal(t, want, buf.String())

	_, err = svc.Labels(ctx, nil, &buf)
	requireCode(t, err, apperr.CodeInvalidArgument)
	_, err = svc.Labels(ctx, []int64{999}, &buf)
	requireCode(t, err, apperr.CodeNotFound)
}
