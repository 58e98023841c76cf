package equipment

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/db"
)

const selectEquipment = `
SELECT id, asset_tag, serial_number, model, brand, acquisition_year, status, created_at, updated_at
FROM equipment`

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

type scanner interface {
	Scan(dest ...any) error
}

func scanEquipment(row scanner) (*Equipment, error) {
	var e Equipment
	if err := row.Scan(
		&e.ID, &e.AssetTag, &e.SerialNumber, &e.Model, &e.Brand,
		&e.AcquisitionYear, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) Insert(ctx context.Context, e *Equipment) error {
	const q = `
INSERT INTO equipment (asset_tag, serial_number, model, brand, acquisition_year, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		e.AssetTag, e.SerialNumber, e.Model, e.Brand, e.AcquisitionYear, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return translateErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Equipment, error) {
	e, err := scanEquipment(s.db.QueryRowContext(ctx, selectEquipment+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("equipment not found")
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) List(ctx context.Context) ([]*Equipment, error) {
	return s.query(ctx, selectEquipment+` ORDER BY id`)
}

// ListAvailable feeds the loan form.
func (s *Store) ListAvailable(ctx context.Context) ([]*Equipment, error) {
	return s.query(ctx, selectEquipment+` WHERE status = ? ORDER BY asset_tag`, StatusAvailable)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*Equipment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateIfStatus replaces the mutable fields only while the row still has
// the status observed when the request was validated.
func (s *Store) UpdateIfStatus(ctx context.Context, e *Equipment, observed string) (int64, error) {
	const q = `
UPDATE equipment
SET asset_tag = ?, serial_number = ?, model = ?, brand = ?, acquisition_year = ?, status = ?, updated_at = ?
WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, q,
		e.AssetTag, e.SerialNumber, e.Model, e.Brand, e.AcquisitionYear, e.Status, e.UpdatedAt,
		e.ID, observed)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

// SetAdminStatus writes available or disabled, never touching a loaned row.
func (s *Store) SetAdminStatus(ctx context.Context, id int64, status string, now time.Time) (int64, error) {
	const q = `
UPDATE equipment SET status = ?, updated_at = ?
WHERE id = ? AND status IN ('available', 'disabled')`
	res, err := s.db.ExecContext(ctx, q, status, now, id)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteUnlessLoaned(ctx context.Context, id int64) (int64, error) {
	const q = `DELETE FROM equipment WHERE id = ? AND status <> 'loaned'`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM equipment GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int64{StatusAvailable: 0, StatusLoaned: 0, StatusDisabled: 0}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func translateErr(err error) error {
	if key, ok := db.UniqueViolation(err); ok {
		switch {
		case strings.Contains(key, "asset_tag"):
			return apperr.AlreadyExists("tag")
		case strings.Contains(key, "serial_number"):
			return apperr.AlreadyExists("serial")
		}
		return apperr.Conflict("duplicate value")
	}
	if db.IsContention(err) {
		return apperr.Conflict("concurrent update, retry")
	}
	if db.IsForeignKeyViolation(err) {
		return apperr.ReferentialConflict("equipment is still referenced")
	}
	return err
}
