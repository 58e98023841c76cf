package equipment

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/clock"
)

// Service owns the availability state machine:
//
//	available ⇄ disabled   admin-set
//	available → loaned     loan created
//	loaned → available     loan closed or deleted
//
// loaned is written only by the loan manager.
type Service struct {
	store *Store
	clock clock.Clock
	log   *zap.Logger
}

func NewService(db *sql.DB, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{store: NewStore(db), clock: clk, log: log}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*EquipmentResponse, error) {
	e := &Equipment{Status: StatusAvailable}
	if err := applyFields(e, req.Tag, req.Serial, req.Model, req.Brand, req.Year); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	e.CreatedAt, e.UpdatedAt = now, now

	if err := s.store.Insert(ctx, e); err != nil {
		return nil, err
	}
	s.log.Info("equipment registered", zap.Int64("equipment_id", e.ID), zap.String("tag", e.AssetTag))
	resp := buildEquipmentResponse(e)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*EquipmentResponse, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildEquipmentResponse(e)
	return &resp, nil
}

// List returns every item by id. Filtering is left to the client.
func (s *Service) List(ctx context.Context) ([]EquipmentResponse, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return buildList(list), nil
}

func (s *Service) ListAvailable(ctx context.Context) ([]EquipmentResponse, error) {
	list, err := s.store.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	return buildList(list), nil
}

// Update replaces all mutable fields. A status change must stay inside the
// admin half of the state machine.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*EquipmentResponse, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	observed := e.Status
	if err := checkTransition(observed, req.Status); err != nil {
		return nil, err
	}
	if err := applyFields(e, req.Tag, req.Serial, req.Model, req.Brand, req.Year); err != nil {
		return nil, err
	}
	e.Status = req.Status
	e.UpdatedAt = s.clock.Now()

	n, err := s.store.UpdateIfStatus(ctx, e, observed)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.explain(ctx, id)
	}
	resp := buildEquipmentResponse(e)
	return &resp, nil
}

// SetStatus moves an item to an explicit target. Repeating the call with the
// same target succeeds without change.
func (s *Service) SetStatus(ctx context.Context, id int64, target string) (*EquipmentResponse, error) {
	if target != StatusAvailable && target != StatusDisabled {
		return nil, apperr.InvalidTransition("status can only be set to available or disabled")
	}

	n, err := s.store.SetAdminStatus(ctx, id, target, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.explain(ctx, id)
	}
	s.log.Info("equipment status set", zap.Int64("equipment_id", id), zap.String("status", target))
	return s.Get(ctx, id)
}

func (s *Service) Remove(ctx context.Context, id int64) error {
	n, err := s.store.DeleteUnlessLoaned(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.explain(ctx, id)
	}
	s.log.Info("equipment removed", zap.Int64("equipment_id", id))
	return nil
}

// explain reports why a guarded write matched no row.
func (s *Service) explain(ctx context.Context, id int64) error {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e.Status == StatusLoaned {
		return apperr.InvalidTransition("equipment is on loan")
	}
	return apperr.Conflict("equipment changed concurrently, retry")
}

// checkTransition validates an admin-requested status change.
func checkTransition(from, to string) error {
	if from == to {
		return nil
	}
	if to == StatusLoaned {
		return apperr.InvalidTransition("loaned is set only by creating a loan")
	}
	if from == StatusLoaned {
		return apperr.InvalidTransition("equipment is on loan; close or delete the loan first")
	}
	return nil
}

func applyFields(e *Equipment, tag, serial, model, brand string, year *int) error {
	e.AssetTag = strings.TrimSpace(tag)
	e.SerialNumber = strings.TrimSpace(serial)
	e.Model = strings.TrimSpace(model)
	e.Brand = strings.TrimSpace(brand)
	required := []struct{ field, value string }{
		{"tag", e.AssetTag},
		{"serial", e.SerialNumber},
		{"model", e.Model},
		{"brand", e.Brand},
	}
	for _, r := range required {
		if r.value == "" {
			return apperr.InvalidField(r.field, r.field+" is required")
		}
	}
	e.AcquisitionYear = sql.NullInt64{}
	if year != nil {
		e.AcquisitionYear = sql.NullInt64{Int64: int64(*year), Valid: true}
	}
	return nil
}

func buildList(list []*Equipment) []EquipmentResponse {
	out := make([]EquipmentResponse, 0, len(list))
	for _, e := range list {
		out = append(out, buildEquipmentResponse(e))
	}
	return out
}
