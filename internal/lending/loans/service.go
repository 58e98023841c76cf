package loans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"notebook-lending/internal/lending/equipment"
	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/clock"
	"notebook-lending/internal/platform/db"
	"notebook-lending/internal/platform/metrics"
)

// ===== インターフェース群 =====

type IDGen interface {
	New() (string, error)
}

type ulidGen struct {
	clock clock.Clock
}

func (g ulidGen) New() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(g.clock.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Service本体 =====

type Service struct {
	db      *sql.DB
	store   *Store
	equip   *equipment.Service
	clock   clock.Clock
	id      IDGen
	loc     *time.Location
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewService wires the loan manager. loc is the zone loan dates and times
// are entered in and weekdays are counted in.
func NewService(conn *sql.DB, clk clock.Clock, loc *time.Location, m *metrics.Metrics, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:      conn,
		store:   NewStore(conn),
		equip:   equipment.NewService(conn, clk, log),
		clock:   clk,
		id:      ulidGen{clock: clk},
		loc:     loc,
		metrics: m,
		log:     log,
	}
}

// 貸出登録
//
// One transaction claims the borrower row, swaps the notebook from available
// to loaned, checks the borrower has no open loan, and inserts the loan. The
// unique indexes over open loans back both one-loan rules, so a concurrent
// or replayed request ends in CONFLICT.
func (s *Service) CreateLoan(ctx context.Context, req CreateLoanRequest) (*LoanResponse, error) {
	if req.PersonID <= 0 {
		return nil, apperr.InvalidField("person_id", "person_id must be > 0")
	}
	if req.EquipmentID <= 0 {
		return nil, apperr.InvalidField("equipment_id", "equipment_id must be > 0")
	}
	loanedAt, err := s.parseLocal(req.LoanDate, req.LoanTime, "loan_date")
	if err != nil {
		return nil, err
	}
	dueAt, err := s.parseLocal(req.DueDate, req.DueTime, "due_date")
	if err != nil {
		return nil, err
	}
	if !dueAt.After(loanedAt) {
		return nil, apperr.InvalidField("due_date", "expected return must be after the loan start")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	loan := &Loan{
		LoanULID:    idStr,
		PersonID:    req.PersonID,
		EquipmentID: req.EquipmentID,
		LoanedAt:    loanedAt,
		DueAt:       dueAt,
		PickupNotes: strings.TrimSpace(req.Notes),
		Status:      StatusOpen,
		CreatedAt:   now,
		Accessories: normalizeAccessories(req.Accessories),
	}

	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		// 1. 借り手: 存在・有効・一般アカウント
		ok, err := claimPerson(ctx, tx, loan.PersonID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidField("person_id", "person not found, inactive or not a standard account")
		}

		// 2. 機材: available → loaned
		ok, err = claimEquipment(ctx, tx, loan.EquipmentID, now)
		if err != nil {
			return err
		}
		if !ok {
			status, err := equipmentStatus(ctx, tx, loan.EquipmentID)
			if err != nil {
				return err
			}
			return apperr.Conflict("equipment is not available (" + status + ")")
		}

		// 3. 一人一件
		n, err := countOpenByPerson(ctx, tx, loan.PersonID)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("person already has an open loan")
		}

		// 4. Insert loan + accessories
		return insertLoan(ctx, tx, loan)
	})
	if err != nil {
		return nil, translateErr(err)
	}

	s.metrics.LoanEvent(metrics.LoanCreated)
	s.log.Info("loan created",
		zap.Int64("loan_id", loan.ID),
		zap.String("loan_ulid", loan.LoanULID),
		zap.Int64("person_id", loan.PersonID),
		zap.Int64("equipment_id", loan.EquipmentID),
	)
	return s.GetLoan(ctx, loan.LoanULID)
}

// 返却登録
func (s *Service) CloseLoan(ctx context.Context, key string, returnNotes string) (*LoanResponse, error) {
	var loan *Loan
	now := s.clock.Now()

	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		l, err := findByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		ok, err := closeOpen(ctx, tx, l.ID, strings.TrimSpace(returnNotes), now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("loan is already closed")
		}

		released, err := releaseEquipment(ctx, tx, l.EquipmentID, now)
		if err != nil {
			return err
		}
		if !released {
			s.log.Warn("closed loan did not hold its equipment",
				zap.Int64("loan_id", l.ID), zap.Int64("equipment_id", l.EquipmentID))
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}

	s.metrics.LoanEvent(metrics.LoanClosed)
	s.log.Info("loan closed", zap.Int64("loan_id", loan.ID), zap.Int64("equipment_id", loan.EquipmentID))
	return s.GetLoan(ctx, loan.LoanULID)
}

// DeleteLoan removes a loan in either state. Deleting an open loan puts its
// notebook back on the shelf in the same transaction.
func (s *Service) DeleteLoan(ctx context.Context, key string) error {
	var loan *Loan
	now := s.clock.Now()

	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		l, err := findByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		ok, err := deleteIfStatus(ctx, tx, l.ID, l.Status)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("loan changed concurrently, retry")
		}
		if l.Status == StatusOpen {
			if _, err := releaseEquipment(ctx, tx, l.EquipmentID, now); err != nil {
				return err
			}
		}
		loan = l
		return nil
	})
	if err != nil {
		return translateErr(err)
	}

	s.metrics.LoanEvent(metrics.LoanDeleted)
	s.log.Info("loan deleted", zap.Int64("loan_id", loan.ID), zap.String("was", loan.Status))
	return nil
}

// 貸出単一取得（ID or ULID）
func (s *Service) GetLoan(ctx context.Context, key string) (*LoanResponse, error) {
	v, err := s.store.GetView(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := buildLoanResponse(v)
	return &resp, nil
}

func (s *Service) ListLoans(ctx context.Context, f ListFilter) ([]LoanResponse, error) {
	if f.Status != nil && *f.Status != StatusOpen && *f.Status != StatusClosed {
		return nil, apperr.InvalidField("status", "status must be open or closed")
	}
	views, err := s.store.ListViews(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]LoanResponse, 0, len(views))
	for _, v := range views {
		out = append(out, buildLoanResponse(v))
	}
	return out, nil
}

// LoanOptions lists the people who may borrow and the notebooks that can be
// lent right now.
func (s *Service) LoanOptions(ctx context.Context) (*OptionsResponse, error) {
	people, err := s.store.EligiblePeople(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.equip.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	resp := &OptionsResponse{
		People:    make([]PersonOption, 0, len(people)),
		Equipment: make([]EquipmentOption, 0, len(items)),
	}
	resp.People = append(resp.People, people...)
	for _, e := range items {
		resp.Equipment = append(resp.Equipment, EquipmentOption{ID: e.ID, Tag: e.Tag, Model: e.Model, Brand: e.Brand})
	}
	return resp, nil
}

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

// WeeklyActivity counts loans started since local midnight seven days ago,
// per local weekday, Monday to Friday.
func (s *Service) WeeklyActivity(ctx context.Context) (*WeeklyActivity, error) {
	now := s.clock.Now().In(s.loc)
	y, m, d := now.Date()
	since := time.Date(y, m, d, 0, 0, 0, 0, s.loc).AddDate(0, 0, -7)

	starts, err := s.store.LoanedSince(ctx, since.UTC())
	if err != nil {
		return nil, err
	}

	data := make([]int, len(weekdayLabels))
	for _, t := range starts {
		wd := t.In(s.loc).Weekday()
		if wd >= time.Monday && wd <= time.Friday {
			data[wd-time.Monday]++
		}
	}
	labels := make([]string, len(weekdayLabels))
	copy(labels, weekdayLabels)
	return &WeeklyActivity{Labels: labels, Data: data}, nil
}

func (s *Service) parseLocal(date, hhmm, field string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(date)+" "+strings.TrimSpace(hhmm), s.loc)
	if err != nil {
		return time.Time{}, apperr.InvalidField(field, field+" must be YYYY-MM-DD with time HH:MM")
	}
	return t.UTC().Truncate(time.Second), nil
}

// normalizeAccessories trims names, drops blanks and collapses duplicates.
func normalizeAccessories(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
