package people

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"notebook-lending/internal/platform/auth"
	"notebook-lending/internal/platform/config"
	"notebook-lending/internal/platform/validation"
)

// EnsurePrimaryAdmin creates the primary administrator when the people table
// is empty. It reports whether a row was written.
func (s *Service) EnsurePrimaryAdmin(ctx context.Context, seed config.AdminSeed) (bool, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if strings.TrimSpace(seed.Email) == "" || seed.Password == "" {
		return false, errors.New("people table is empty: admin.email and admin.password (ADMIN_EMAIL, ADMIN_PASSWORD) are required to seed the primary administrator")
	}

	hash, err := auth.HashPassword(seed.Password)
	if err != nil {
		return false, err
	}
	nationalID := validation.NormalizeNationalID(seed.NationalID)
	if nationalID == "" {
		nationalID = "00000000000"
	}

	now := s.clock.Now()
	p := &Person{
		FullName:     seed.Name,
		Email:        sql.NullString{String: strings.TrimSpace(seed.Email), Valid: true},
		NationalID:   nationalID,
		Kind:         KindAdmin,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertPrimaryAdmin(ctx, p); err != nil {
		return false, err
	}
	s.log.Info("primary administrator seeded", zap.String("email", p.Email.String))
	return true, nil
}
