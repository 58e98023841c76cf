package loans

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// parseKey: 数値なら id、それ以外は ULID として扱う
func parseKey(key string) (string, any, error) {
	key = strings.TrimSpace(key)
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		if id <= 0 {
			return "", nil, apperr.InvalidField("key", "loan id must be positive")
		}
		return "l.id", id, nil
	}
	if _, err := ulid.ParseStrict(key); err == nil {
		return "l.loan_ulid", strings.ToUpper(key), nil
	}
	return "", nil, apperr.InvalidField("key", "loan key must be a numeric id or a ULID")
}

// ---- loan creation (tx) ----

// claimPerson locks the borrower row and checks eligibility in one
// statement. It reports whether an active standard account matched.
func claimPerson(ctx context.Context, tx db.DBTX, personID int64) (bool, error) {
	const q = `UPDATE people SET active = active WHERE id = ? AND active = 1 AND kind = 'standard'`
	res, err := tx.ExecContext(ctx, q, personID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// claimEquipment is the compare-and-swap available → loaned.
func claimEquipment(ctx context.Context, tx db.DBTX, equipmentID int64, now time.Time) (bool, error) {
	const q = `UPDATE equipment SET status = 'loaned', updated_at = ? WHERE id = ? AND status = 'available'`
	res, err := tx.ExecContext(ctx, q, now, equipmentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// releaseEquipment is the compare-and-swap loaned → available.
func releaseEquipment(ctx context.Context, tx db.DBTX, equipmentID int64, now time.Time) (bool, error) {
	const q = `UPDATE equipment SET status = 'available', updated_at = ? WHERE id = ? AND status = 'loaned'`
	res, err := tx.ExecContext(ctx, q, now, equipmentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func equipmentStatus(ctx context.Context, tx db.DBTX, equipmentID int64) (string, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM equipment WHERE id = ?`, equipmentID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.InvalidField("equipment_id", "equipment not found")
	}
	return status, err
}

func countOpenByPerson(ctx context.Context, tx db.DBTX, personID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans WHERE person_id = ? AND status = 'open'`, personID).Scan(&n)
	return n, err
}

func insertLoan(ctx context.Context, tx db.DBTX, l *Loan) error {
	const q = `
INSERT INTO loans
(loan_ulid, person_id, equipment_id, loaned_at, due_at, returned_at, pickup_notes, return_notes, status, created_at)
VALUES (?, ?, ?, ?, ?, NULL, ?, '', 'open', ?)`
	res, err := tx.ExecContext(ctx, q,
		l.LoanULID, l.PersonID, l.EquipmentID, l.LoanedAt, l.DueAt, l.PickupNotes, l.CreatedAt)
	if err != nil {
		return translateErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = id

	for _, name := range l.Accessories {
		if _, err := tx.ExecContext(ctx, `INSERT INTO loan_accessories (loan_id, name) VALUES (?, ?)`, l.ID, name); err != nil {
			return translateErr(err)
		}
	}
	return nil
}

// ---- closure / deletion (tx) ----

func closeOpen(ctx context.Context, tx db.DBTX, id int64, notes string, now time.Time) (bool, error) {
	const q = `
UPDATE loans SET status = 'closed', returned_at = ?, return_notes = ?
WHERE id = ? AND status = 'open'`
	res, err := tx.ExecContext(ctx, q, now, notes, id)
	if err != nil {
		return false, translateErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func deleteIfStatus(ctx context.Context, tx db.DBTX, id int64, status string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE id = ? AND status = ?`, id, status)
	if err != nil {
		return false, translateErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func findByKey(ctx context.Context, q db.DBTX, key string) (*Loan, error) {
	col, arg, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	query, args, err := sq.Select(
		"l.id", "l.loan_ulid", "l.person_id", "l.equipment_id", "l.loaned_at", "l.due_at",
		"l.returned_at", "l.pickup_notes", "l.return_notes", "l.status", "l.created_at",
	).From("loans l").Where(sq.Eq{col: arg}).ToSql()
	if err != nil {
		return nil, err
	}

	var l Loan
	err = q.QueryRowContext(ctx, query, args...).Scan(
		&l.ID, &l.LoanULID, &l.PersonID, &l.EquipmentID, &l.LoanedAt, &l.DueAt,
		&l.ReturnedAt, &l.PickupNotes, &l.ReturnNotes, &l.Status, &l.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("loan not found")
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ---- read side ----

func viewQuery() sq.SelectBuilder {
	return sq.Select(
		"l.id", "l.loan_ulid", "l.person_id", "l.equipment_id", "l.loaned_at", "l.due_at",
		"l.returned_at", "l.pickup_notes", "l.return_notes", "l.status", "l.created_at",
		"p.full_name", "p.national_id", "e.asset_tag", "e.model",
	).
		From("loans l").
		LeftJoin("people p ON p.id = l.person_id").
		LeftJoin("equipment e ON e.id = l.equipment_id")
}

func (s *Store) GetView(ctx context.Context, key string) (*LoanView, error) {
	col, arg, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	views, err := s.queryViews(ctx, viewQuery().Where(sq.Eq{col: arg}))
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, apperr.NotFound("loan not found")
	}
	return views[0], nil
}

// ListViews orders open (and unfiltered) listings by loan time and closed
// listings by return time, newest first.
func (s *Store) ListViews(ctx context.Context, f ListFilter) ([]*LoanView, error) {
	b := viewQuery()
	if f.Status != nil {
		b = b.Where(sq.Eq{"l.status": *f.Status})
	}
	if f.Status != nil && *f.Status == StatusClosed {
		b = b.OrderBy("l.returned_at DESC", "l.id DESC")
	} else {
		b = b.OrderBy("l.loaned_at DESC", "l.id DESC")
	}
	return s.queryViews(ctx, b)
}

func (s *Store) queryViews(ctx context.Context, b sq.SelectBuilder) ([]*LoanView, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	var views []*LoanView
	byID := make(map[int64]*LoanView)
	for rows.Next() {
		var v LoanView
		if err := rows.Scan(
			&v.ID, &v.LoanULID, &v.PersonID, &v.EquipmentID, &v.LoanedAt, &v.DueAt,
			&v.ReturnedAt, &v.PickupNotes, &v.ReturnNotes, &v.Status, &v.CreatedAt,
			&v.PersonName, &v.PersonNationalID, &v.EquipmentTag, &v.EquipmentModel,
		); err != nil {
			rows.Close()
			return nil, err
		}
		views = append(views, &v)
		byID[v.ID] = &v
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(views) == 0 {
		return views, nil
	}
	if err := s.loadAccessories(ctx, byID); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Store) loadAccessories(ctx context.Context, byID map[int64]*LoanView) error {
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	q, args, err := sq.Select("loan_id", "name").
		From("loan_accessories").
		Where(sq.Eq{"loan_id": ids}).
		OrderBy("loan_id", "name").
		ToSql()
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var loanID int64
		var name string
		if err := rows.Scan(&loanID, &name); err != nil {
			return err
		}
		if v, ok := byID[loanID]; ok {
			v.Accessories = append(v.Accessories, name)
		}
	}
	return rows.Err()
}

// LoanedSince returns the start time of every loan that began at or after t.
func (s *Store) LoanedSince(ctx context.Context, t time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT loaned_at FROM loans WHERE loaned_at >= ?`, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

// EligiblePeople are active standard accounts without an open loan.
func (s *Store) EligiblePeople(ctx context.Context) ([]PersonOption, error) {
	const q = `
SELECT p.id, p.full_name, p.national_id
FROM people p
WHERE p.kind = 'standard' AND p.active = 1
AND NOT EXISTS (SELECT 1 FROM loans l WHERE l.person_id = p.id AND l.status = 'open')
ORDER BY p.full_name, p.id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PersonOption
	for rows.Next() {
		var o PersonOption
		if err := rows.Scan(&o.ID, &o.Name, &o.NationalID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ---- reconciliation ----

func (s *Store) queryIDs(ctx context.Context, q string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StrandedLoaned lists loaned equipment that no open loan references.
func (s *Store) StrandedLoaned(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, `
SELECT e.id FROM equipment e
WHERE e.status = 'loaned'
AND NOT EXISTS (SELECT 1 FROM loans l WHERE l.equipment_id = e.id AND l.status = 'open')
ORDER BY e.id`)
}

// UnmarkedOnLoan lists equipment referenced by an open loan but not loaned.
func (s *Store) UnmarkedOnLoan(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, `
SELECT e.id FROM equipment e
WHERE e.status <> 'loaned'
AND EXISTS (SELECT 1 FROM loans l WHERE l.equipment_id = e.id AND l.status = 'open')
ORDER BY e.id`)
}

// RepairStranded re-checks the drift inside the write so a loan created
// meanwhile is never undone.
func (s *Store) RepairStranded(ctx context.Context, id int64, now time.Time) (bool, error) {
	const q = `
UPDATE equipment SET status = 'available', updated_at = ?
WHERE id = ? AND status = 'loaned'
AND NOT EXISTS (SELECT 1 FROM loans l WHERE l.equipment_id = ? AND l.status = 'open')`
	res, err := s.db.ExecContext(ctx, q, now, id, id)
	if err != nil {
		return false, translateErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) RepairUnmarked(ctx context.Context, id int64, now time.Time) (bool, error) {
	const q = `
UPDATE equipment SET status = 'loaned', updated_at = ?
WHERE id = ? AND status <> 'loaned'
AND EXISTS (SELECT 1 FROM loans l WHERE l.equipment_id = ? AND l.status = 'open')`
	res, err := s.db.ExecContext(ctx, q, now, id, id)
	if err != nil {
		return false, translateErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func translateErr(err error) error {
	if key, ok := db.UniqueViolation(err); ok {
		switch {
		case strings.Contains(key, "ulid"):
			return apperr.Conflict("loan id collision, retry")
		case strings.Contains(key, "person"):
			return apperr.Conflict("person already has an open loan")
		case strings.Contains(key, "equipment"):
			return apperr.Conflict("equipment already has an open loan")
		}
		return apperr.Conflict("duplicate value")
	}
	if db.IsContention(err) {
		return apperr.Conflict("concurrent update, retry")
	}
	if db.IsForeignKeyViolation(err) {
		return apperr.ReferentialConflict("loan reference is invalid")
	}
	return err
}
