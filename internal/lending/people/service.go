package people

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/auth"
	"notebook-lending/internal/platform/clock"
	"notebook-lending/internal/platform/validation"
)

// TokenRevoker drops the sessions of a person who lost access.
type TokenRevoker interface {
	RevokePerson(ctx context.Context, personID int64) error
}

type Options struct {
	DefaultPassword string
	Locale          string
}

type Service struct {
	store   *Store
	clock   clock.Clock
	revoker TokenRevoker
	log     *zap.Logger
	opts    Options
	lang    language.Tag
}

func NewService(db *sql.DB, clk clock.Clock, revoker TokenRevoker, log *zap.Logger, opts Options) *Service {
	lang, err := language.Parse(opts.Locale)
	if err != nil {
		lang = language.BrazilianPortuguese
	}
	return &Service{
		store:   NewStore(db),
		clock:   clk,
		revoker: revoker,
		log:     log,
		opts:    opts,
		lang:    lang,
	}
}

func (s *Service) Create(ctx context.Context, req CreatePersonRequest) (*PersonResponse, error) {
	p := &Person{
		FullName:   strings.TrimSpace(req.FullName),
		NationalID: validation.NormalizeNationalID(req.NationalID),
		Kind:       req.Kind,
		Active:     true,
		Profile:    req.Profile,
	}
	p.Email = nullString(req.Email)
	p.EnrollmentID = nullString(req.EnrollmentID)
	if err := checkIdentity(p); err != nil {
		return nil, err
	}

	password := ""
	if req.Password != nil {
		password = *req.Password
	}
	if password == "" {
		if p.Kind == KindAdmin {
			return nil, apperr.InvalidField("password", "password is required for admin accounts")
		}
		password = s.opts.DefaultPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	p.PasswordHash = hash

	now := s.clock.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.store.Insert(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info("person created", zap.Int64("person_id", p.ID), zap.String("kind", p.Kind))
	resp := buildPersonResponse(p)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*PersonResponse, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildPersonResponse(p)
	return &resp, nil
}

// List returns people ordered by name using the configured locale's
// collation, so accented names sort where a reader expects them.
func (s *Service) List(ctx context.Context, f ListFilter) ([]PersonResponse, error) {
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}

	// Collator はゴルーチン安全ではないので呼び出しごとに作る
	col := collate.New(s.lang, collate.IgnoreCase)
	sort.SliceStable(list, func(i, j int) bool {
		return col.CompareString(list[i].FullName, list[j].FullName) < 0
	})

	out := make([]PersonResponse, 0, len(list))
	for _, p := range list {
		out = append(out, buildPersonResponse(p))
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdatePersonRequest) (*PersonResponse, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p.FullName = strings.TrimSpace(req.FullName)
	p.NationalID = validation.NormalizeNationalID(req.NationalID)
	p.Email = nullString(req.Email)
	p.EnrollmentID = nullString(req.EnrollmentID)
	p.Profile = req.Profile
	if err := checkIdentity(p); err != nil {
		return nil, err
	}

	var newHash *string
	if req.Password != nil && *req.Password != "" {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		newHash = &hash
	}

	p.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, p, newHash); err != nil {
		return nil, err
	}
	resp := buildPersonResponse(p)
	return &resp, nil
}

// SetActive moves the account to the requested state. Deactivation fails
// with CONFLICT while the person holds an open loan.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (*PersonResponse, error) {
	if id == PrimaryAdminID && !active {
		return nil, apperr.PermissionDenied("the primary administrator cannot be deactivated")
	}

	n, err := s.store.SetActive(ctx, id, active, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.explainBlocked(ctx, id, "deactivate")
	}

	if !active {
		s.revoke(ctx, id)
	}
	s.log.Info("person status changed", zap.Int64("person_id", id), zap.Bool("active", active))
	return s.Get(ctx, id)
}

// Delete removes the person. Closed loans keep referring to the id and
// render a placeholder.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id == PrimaryAdminID {
		return apperr.PermissionDenied("the primary administrator cannot be deleted")
	}

	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.explainBlocked(ctx, id, "delete")
	}

	s.revoke(ctx, id)
	s.log.Info("person deleted", zap.Int64("person_id", id))
	return nil
}

// explainBlocked tells apart the reasons a guarded write matched no row.
func (s *Service) explainBlocked(ctx context.Context, id int64, action string) error {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return err
	}
	open, err := s.store.HasOpenLoan(ctx, id)
	if err != nil {
		return err
	}
	if open {
		return apperr.Conflict("cannot " + action + " a person with an open loan")
	}
	// ローンが直前に閉じられた等の競合
	return apperr.Conflict("person changed concurrently, retry")
}

func (s *Service) revoke(ctx context.Context, id int64) {
	if s.revoker == nil {
		return
	}
	if err := s.revoker.RevokePerson(ctx, id); err != nil {
		s.log.Warn("revoke sessions failed", zap.Int64("person_id", id), zap.Error(err))
	}
}

func checkIdentity(p *Person) error {
	if p.FullName == "" {
		return apperr.InvalidField("full_name", "full_name is required")
	}
	if p.Kind == KindAdmin {
		if !p.Email.Valid {
			return apperr.InvalidField("email", "email is required for admin accounts")
		}
		if p.EnrollmentID.Valid {
			return apperr.InvalidField("enrollment_id", "enrollment_id is only for standard accounts")
		}
	}
	return nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
