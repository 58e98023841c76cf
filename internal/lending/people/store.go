package people

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/db"
)

var personColumns = []string{
	"id", "full_name", "email", "national_id", "enrollment_id", "kind", "active", "password_hash",
	"phone", "birth_date", "gender", "course", "term", "shift", "postal_code",
	"street", "street_number", "district", "city", "state", "complement",
	"created_at", "updated_at",
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(row scanner) (*Person, error) {
	var p Person
	err := row.Scan(
		&p.ID, &p.FullName, &p.Email, &p.NationalID, &p.EnrollmentID, &p.Kind, &p.Active, &p.PasswordHash,
		&p.Phone, &p.BirthDate, &p.Gender, &p.Course, &p.Term, &p.Shift, &p.PostalCode,
		&p.Street, &p.StreetNumber, &p.District, &p.City, &p.State, &p.Complement,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Insert(ctx context.Context, p *Person) error {
	const q = `
INSERT INTO people
(full_name, email, national_id, enrollment_id, kind, active, password_hash,
 phone, birth_date, gender, course, term, shift, postal_code,
 street, street_number, district, city, state, complement,
 created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		p.FullName, p.Email, p.NationalID, p.EnrollmentID, p.Kind, p.Active, p.PasswordHash,
		p.Phone, p.BirthDate, p.Gender, p.Course, p.Term, p.Shift, p.PostalCode,
		p.Street, p.StreetNumber, p.District, p.City, p.State, p.Complement,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return translateErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// InsertPrimaryAdmin writes the seed administrator with the fixed primary id.
func (s *Store) InsertPrimaryAdmin(ctx context.Context, p *Person) error {
	const q = `
INSERT INTO people (id, full_name, email, national_id, kind, active, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		PrimaryAdminID, p.FullName, p.Email, p.NationalID, KindAdmin, true, p.PasswordHash, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return translateErr(err)
	}
	p.ID = PrimaryAdminID
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM people`).Scan(&n)
	return n, err
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Person, error) {
	q, args, err := sq.Select(personColumns...).From("people").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	p, err := scanPerson(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("person not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Person, error) {
	b := sq.Select(personColumns...).From("people").OrderBy("id")
	if f.Kind != nil {
		b = b.Where(sq.Eq{"kind": *f.Kind})
	}
	if f.Active != nil {
		b = b.Where(sq.Eq{"active": *f.Active})
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update replaces the profile. The password hash is only written when set.
func (s *Store) Update(ctx context.Context, p *Person, newHash *string) error {
	b := sq.Update("people").SetMap(map[string]any{
		"full_name":     p.FullName,
		"email":         p.Email,
		"national_id":   p.NationalID,
		"enrollment_id": p.EnrollmentID,
		"phone":         p.Phone,
		"birth_date":    p.BirthDate,
		"gender":        p.Gender,
		"course":        p.Course,
		"term":          p.Term,
		"shift":         p.Shift,
		"postal_code":   p.PostalCode,
		"street":        p.Street,
		"street_number": p.StreetNumber,
		"district":      p.District,
		"city":          p.City,
		"state":         p.State,
		"complement":    p.Complement,
		"updated_at":    p.UpdatedAt,
	}).Where(sq.Eq{"id": p.ID})
	if newHash != nil {
		b = b.Set("password_hash", *newHash)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("person not found")
	}
	return nil
}

// SetActive writes the flag. Deactivation is conditioned on the person
// holding no open loan in the same statement.
func (s *Store) SetActive(ctx context.Context, id int64, active bool, now time.Time) (int64, error) {
	q := `UPDATE people SET active = ?, updated_at = ? WHERE id = ?`
	args := []any{active, now, id}
	if !active {
		q += ` AND NOT EXISTS (SELECT 1 FROM loans WHERE person_id = ? AND status = 'open')`
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

// Delete removes the person unless an open loan references them.
func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	const q = `
DELETE FROM people
WHERE id = ?
AND NOT EXISTS (SELECT 1 FROM loans WHERE person_id = ? AND status = 'open')`
	res, err := s.db.ExecContext(ctx, q, id, id)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

func (s *Store) HasOpenLoan(ctx context.Context, id int64) (bool, error) {
	const q = `SELECT COUNT(*) FROM loans WHERE person_id = ? AND status = 'open'`
	var n int
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// translateErr maps driver errors onto the error taxonomy.
func translateErr(err error) error {
	if key, ok := db.UniqueViolation(err); ok {
		for _, field := range []string{"national_id", "enrollment_id", "email"} {
			if strings.Contains(key, field) {
				return apperr.AlreadyExists(field)
			}
		}
		if strings.Contains(key, "PRIMARY") || strings.Contains(key, "people.id") {
			return apperr.Conflict("person id already taken")
		}
		return apperr.Conflict("duplicate value")
	}
	if db.IsContention(err) {
		return apperr.Conflict("concurrent update, retry")
	}
	if db.IsForeignKeyViolation(err) {
		return apperr.ReferentialConflict("person is still referenced")
	}
	return err
}
