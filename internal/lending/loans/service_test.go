package loans

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"notebook-lending/internal/lending/equipment"
	"notebook-lending/internal/lending/people"
	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/clock"
	"notebook-lending/internal/platform/db/dbtest"
	"notebook-lending/internal/platform/metrics"
)

// UTC-3, no DST
var brt = time.FixedZone("BRT", -3*60*60)

type LoanSuite struct {
	suite.Suite
	ctx    context.Context
	db     *sql.DB
	clock  *clock.Fixed
	people *people.Service
	equip  *equipment.Service
	svc    *Service
	seq    int
}

func TestLoanSuite(t *testing.T) {
	suite.Run(t, new(LoanSuite))
}

func (s *LoanSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = dbtest.Open(s.T())
	// 2025-05-07 (水) 12:00 BRT
	s.clock = clock.NewFixed(time.Date(2025, 5, 7, 15, 0, 0, 0, time.UTC))
	s.people = people.NewService(s.db, s.clock, nil, zap.NewNop(), people.Options{DefaultPassword: "123456"})
	s.equip = equipment.NewService(s.db, s.clock, zap.NewNop())
	s.svc = NewService(s.db, s.clock, brt, metrics.New(), zap.NewNop())
	s.seq = 0
}

// ---- fixtures ----

func (s *LoanSuite) person(name string) int64 {
	s.seq++
	res, err := s.people.Create(s.ctx, people.CreatePersonRequest{
		FullName:   name,
		NationalID: fmt.Sprintf("%011d", 10000000000+s.seq),
		Kind:       people.KindStandard,
	})
	s.Require().NoError(err)
	return res.ID
}

func (s *LoanSuite) admin(name string) int64 {
	s.seq++
	email := fmt.Sprintf("admin%d@example.com", s.seq)
	res, err := s.people.Create(s.ctx, people.CreatePersonRequest{
		FullName:   name,
		NationalID: fmt.Sprintf("%011d", 20000000000+s.seq),
		Kind:       people.KindAdmin,
		Email:      &email,
	})
	s.Require().NoError(err)
	return res.ID
}

func (s *LoanSuite) notebook(tag string) int64 {
	res, err := s.equip.Register(s.ctx, equipment.RegisterRequest{
		Tag: tag, Serial: "SN-" + tag, Model: "Inspiron 15", Brand: "Dell",
	})
	s.Require().NoError(err)
	return res.ID
}

func (s *LoanSuite) request(personID, equipmentID int64) CreateLoanRequest {
	return CreateLoanRequest{
		PersonID:    personID,
		EquipmentID: equipmentID,
		LoanDate:    "2025-05-07",
		LoanTime:    "08:00",
		DueDate:     "2025-05-07",
		DueTime:     "17:30",
		Notes:       "  scratched lid ",
		Accessories: []string{"Charger", " mouse", "charger", ""},
	}
}

func (s *LoanSuite) lend(personID, equipmentID int64) *LoanResponse {
	res, err := s.svc.CreateLoan(s.ctx, s.request(personID, equipmentID))
	s.Require().NoError(err)
	return res
}

func (s *LoanSuite) equipmentStatus(id int64) string {
	e, err := s.equip.Get(s.ctx, id)
	s.Require().NoError(err)
	return e.Status
}

func (s *LoanSuite) requireCode(err error, code apperr.Code) *apperr.APIError {
	s.Require().Error(err)
	var api *apperr.APIError
	s.Require().True(errors.As(err, &api), "got %v", err)
	s.Require().Equal(code, api.Code, api.Message)
	return api
}

func (s *LoanSuite) countLoans() int {
	var n int
	s.Require().NoError(s.db.QueryRow(`SELECT COUNT(*) FROM loans`).Scan(&n))
	return n
}

// requireConsistent checks that an item is loaned exactly when one open
// loan references it.
func (s *LoanSuite) requireConsistent() {
	rows, err := s.db.Query(`
SELECT e.id, e.status, (SELECT COUNT(*) FROM loans l WHERE l.equipment_id = e.id AND l.status = 'open')
FROM equipment e`)
	s.Require().NoError(err)
	defer rows.Close()
	for rows.Next() {
		var id int64
		var status string
		var open int
		s.Require().NoError(rows.Scan(&id, &status, &open))
		s.LessOrEqual(open, 1, "equipment %d", id)
		s.Equal(status == equipment.StatusLoaned, open == 1, "equipment %d status=%s open=%d", id, status, open)
	}
	s.Require().NoError(rows.Err())
}

// ---- tests ----

func (s *LoanSuite) TestLendReturnCycle() {
	p := s.person("Paula Lima")
	e := s.notebook("NB-001")

	loan := s.lend(p, e)
	s.Equal(StatusOpen, loan.Status)
	s.Equal("Paula Lima", loan.Person.Name)
	s.Equal("NB-001", loan.Equipment.Tag)
	s.Equal("scratched lid", loan.PickupNotes)
	s.Equal([]string{"Charger", "mouse"}, loan.Accessories)
	s.Equal(time.Date(2025, 5, 7, 11, 0, 0, 0, time.UTC), loan.LoanedAt.UTC())
	s.Equal(time.Date(2025, 5, 7, 20, 30, 0, 0, time.UTC), loan.DueAt.UTC())
	s.Nil(loan.ReturnedAt)
	s.Equal(equipment.StatusLoaned, s.equipmentStatus(e))

	// 同じ人・同じ機材で二件目は不可
	_, err := s.svc.CreateLoan(s.ctx, s.request(p, e))
	s.requireCode(err, apperr.CodeConflict)
	s.Equal(1, s.countLoans())

	s.clock.Advance(3 * time.Hour)
	closed, err := s.svc.CloseLoan(s.ctx, loan.LoanULID, " ok ")
	s.Require().NoError(err)
	s.Equal(StatusClosed, closed.Status)
	s.Equal("ok", closed.ReturnNotes)
	s.Require().NotNil(closed.ReturnedAt)
	s.True(closed.ReturnedAt.Equal(s.clock.Now()))
	s.Equal(equipment.StatusAvailable, s.equipmentStatus(e))

	again := s.lend(p, e)
	s.NotEqual(loan.ID, again.ID)
	s.requireConsistent()
}

func (s *LoanSuite) TestPersonWithOpenLoanCannotBorrowAnother() {
	p := s.person("Paula Lima")
	s.lend(p, s.notebook("NB-001"))
	other := s.notebook("NB-002")

	_, err := s.svc.CreateLoan(s.ctx, s.request(p, other))
	s.requireCode(err, apperr.CodeConflict)
	s.Equal(equipment.StatusAvailable, s.equipmentStatus(other))
	s.requireConsistent()
}

func (s *LoanSuite) TestCloseTwiceIsConflict() {
	loan := s.lend(s.person("Paula Lima"), s.notebook("NB-001"))
	first, err := s.svc.CloseLoan(s.ctx, fmt.Sprint(loan.ID), "first")
	s.Require().NoError(err)

	s.clock.Advance(time.Hour)
	_, err = s.svc.CloseLoan(s.ctx, loan.LoanULID, "second")
	s.requireCode(err, apperr.CodeConflict)

	after, err := s.svc.GetLoan(s.ctx, loan.LoanULID)
	s.Require().NoError(err)
	s.Equal("first", after.ReturnNotes)
	s.True(after.ReturnedAt.Equal(*first.ReturnedAt))
}

func (s *LoanSuite) TestDeleteOpenLoanFreesEquipment() {
	e := s.notebook("NB-001")
	loan := s.lend(s.person("Paula Lima"), e)

	s.Require().NoError(s.svc.DeleteLoan(s.ctx, loan.LoanULID))
	s.Equal(equipment.StatusAvailable, s.equipmentStatus(e))
	s.Equal(0, s.countLoans())

	var n int
	s.Require().NoError(s.db.QueryRow(`SELECT COUNT(*) FROM loan_accessories`).Scan(&n))
	s.Zero(n)

	_, err := s.svc.GetLoan(s.ctx, loan.LoanULID)
	s.requireCode(err, apperr.CodeNotFound)
	s.requireCode(s.svc.DeleteLoan(s.ctx, loan.LoanULID), apperr.CodeNotFound)
}

func (s *LoanSuite) TestDeleteClosedLoanKeepsEquipmentState() {
	e := s.notebook("NB-001")
	loan := s.lend(s.person("Paula Lima"), e)
	_, err := s.svc.CloseLoan(s.ctx, loan.LoanULID, "")
	s.Require().NoError(err)
	_, err = s.equip.SetStatus(s.ctx, e, equipment.StatusDisabled)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteLoan(s.ctx, fmt.Sprint(loan.ID)))
	s.Equal(equipment.StatusDisabled, s.equipmentStatus(e))
}

func (s *LoanSuite) TestEquipmentMustBeAvailable() {
	p := s.person("Paula Lima")
	disabled := s.notebook("NB-001")
	_, err := s.equip.SetStatus(s.ctx, disabled, equipment.StatusDisabled)
	s.Require().NoError(err)

	_, err = s.svc.CreateLoan(s.ctx, s.request(p, disabled))
	s.requireCode(err, apperr.CodeConflict)
	s.Equal(equipment.StatusDisabled, s.equipmentStatus(disabled))

	_, err = s.svc.CreateLoan(s.ctx, s.request(p, 9999))
	api := s.requireCode(err, apperr.CodeInvalidArgument)
	s.Equal("equipment_id", api.Field)
	s.Equal(0, s.countLoans())
}

func (s *LoanSuite) TestBorrowerMustBeActiveStandard() {
	e := s.notebook("NB-001")

	inactive := s.person("Inativo")
	_, err := s.people.SetActive(s.ctx, inactive, false)
	s.Require().NoError(err)

	cases := map[string]int64{
		"inactive": inactive,
		"admin":    s.admin("Admin Two"),
		"missing":  9999,
	}
	for name, id := range cases {
		_, err := s.svc.CreateLoan(s.ctx, s.request(id, e))
		api := s.requireCode(err, apperr.CodeInvalidArgument)
		s.Equal("person_id", api.Field, name)
	}
	s.Equal(equipment.StatusAvailable, s.equipmentStatus(e))
	s.Equal(0, s.countLoans())
}

func (s *LoanSuite) TestRequestValidation() {
	p := s.person("Paula Lima")
	e := s.notebook("NB-001")

	req := s.request(p, e)
	req.DueTime = "07:59"
	api := s.requireCode(func() error { _, err := s.svc.CreateLoan(s.ctx, req); return err }(), apperr.CodeInvalidArgument)
	s.Equal("due_date", api.Field)

	req = s.request(p, e)
	req.LoanDate = "07/05/2025"
	api = s.requireCode(func() error { _, err := s.svc.CreateLoan(s.ctx, req); return err }(), apperr.CodeInvalidArgument)
	s.Equal("loan_date", api.Field)

	s.Equal(equipment.StatusAvailable, s.equipmentStatus(e))
}

func (s *LoanSuite) TestConcurrentLoansOnSameEquipment() {
	e := s.notebook("NB-001")
	borrowers := []int64{s.person("Ana"), s.person("Bia"), s.person("Caio"), s.person("Duda")}

	var wg sync.WaitGroup
	errs := make([]error, len(borrowers))
	for i, p := range borrowers {
		wg.Add(1)
		go func(i int, p int64) {
			defer wg.Done()
			_, errs[i] = s.svc.CreateLoan(s.ctx, s.request(p, e))
		}(i, p)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.Equal(apperr.CodeConflict, apperr.CodeOf(err), err.Error())
	}
	s.Equal(1, ok)
	s.Equal(1, s.countLoans())
	s.requireConsistent()
}

func (s *LoanSuite) TestPlaceholdersForDeletedReferences() {
	p := s.person("Paula Lima")
	e := s.notebook("NB-001")
	loan := s.lend(p, e)
	_, err := s.svc.CloseLoan(s.ctx, loan.LoanULID, "")
	s.Require().NoError(err)

	s.Require().NoError(s.people.Delete(s.ctx, p))
	s.Require().NoError(s.equip.Remove(s.ctx, e))

	got, err := s.svc.GetLoan(s.ctx, loan.LoanULID)
	s.Require().NoError(err)
	s.Equal(p, got.Person.ID)
	s.Equal(DeletedPersonLabel, got.Person.Name)
	s.Equal(MissingFieldLabel, got.Person.NationalID)
	s.Equal(DeletedEquipmentLabel, got.Equipment.Tag)
	s.Equal(MissingFieldLabel, got.Equipment.Model)
}

func (s *LoanSuite) TestListOrdering() {
	e1, e2, e3 := s.notebook("NB-001"), s.notebook("NB-002"), s.notebook("NB-003")
	p1, p2, p3 := s.person("Ana"), s.person("Bia"), s.person("Caio")

	r1 := s.request(p1, e1)
	r1.LoanDate = "2025-05-05"
	l1, err := s.svc.CreateLoan(s.ctx, r1)
	s.Require().NoError(err)

	r2 := s.request(p2, e2)
	r2.LoanDate = "2025-05-06"
	l2, err := s.svc.CreateLoan(s.ctx, r2)
	s.Require().NoError(err)

	l3 := s.lend(p3, e3)

	// l1 を後から返却、l2 を先に返却
	_, err = s.svc.CloseLoan(s.ctx, l2.LoanULID, "")
	s.Require().NoError(err)
	s.clock.Advance(time.Minute)
	_, err = s.svc.CloseLoan(s.ctx, l1.LoanULID, "")
	s.Require().NoError(err)

	all, err := s.svc.ListLoans(s.ctx, ListFilter{})
	s.Require().NoError(err)
	s.Equal([]int64{l3.ID, l2.ID, l1.ID}, ids(all))

	open := StatusOpen
	list, err := s.svc.ListLoans(s.ctx, ListFilter{Status: &open})
	s.Require().NoError(err)
	s.Equal([]int64{l3.ID}, ids(list))

	closed := StatusClosed
	list, err = s.svc.ListLoans(s.ctx, ListFilter{Status: &closed})
	s.Require().NoError(err)
	s.Equal([]int64{l1.ID, l2.ID}, ids(list))

	bad := "late"
	_, err = s.svc.ListLoans(s.ctx, ListFilter{Status: &bad})
	s.requireCode(err, apperr.CodeInvalidArgument)
}

func ids(list []LoanResponse) []int64 {
	out := make([]int64, 0, len(list))
	for _, l := range list {
		out = append(out, l.ID)
	}
	return out
}

func (s *LoanSuite) TestKeyLookup() {
	loan := s.lend(s.person("Paula Lima"), s.notebook("NB-001"))

	byID, err := s.svc.GetLoan(s.ctx, fmt.Sprint(loan.ID))
	s.Require().NoError(err)
	s.Equal(loan.LoanULID, byID.LoanULID)

	_, err = ulid.ParseStrict(loan.LoanULID)
	s.Require().NoError(err)

	_, err = s.svc.GetLoan(s.ctx, "not-a-key")
	s.requireCode(err, apperr.CodeInvalidArgument)
	_, err = s.svc.GetLoan(s.ctx, "0")
	s.requireCode(err, apperr.CodeInvalidArgument)
	_, err = s.svc.GetLoan(s.ctx, "01J00000000000000000000000")
	s.requireCode(err, apperr.CodeNotFound)
}

func (s *LoanSuite) TestOptions() {
	busy := s.person("Bia")
	free := s.person("Ana")
	s.admin("Admin")
	off := s.person("Caio")
	_, err := s.people.SetActive(s.ctx, off, false)
	s.Require().NoError(err)

	lent := s.notebook("NB-001")
	shelf := s.notebook("NB-002")
	s.lend(busy, lent)

	opts, err := s.svc.LoanOptions(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(opts.People, 1)
	s.Equal(free, opts.People[0].ID)
	s.Require().Len(opts.Equipment, 1)
	s.Equal(shelf, opts.Equipment[0].ID)
}

func (s *LoanSuite) TestWeeklyActivity() {
	empty, err := s.svc.WeeklyActivity(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"Mon", "Tue", "Wed", "Thu", "Fri"}, empty.Labels)
	s.Equal([]int{0, 0, 0, 0, 0}, empty.Data)

	starts := []struct{ date, at string }{
		{"2025-04-29", "23:30"}, // 窓の外
		{"2025-04-30", "00:00"}, // 水
		{"2025-05-03", "10:00"}, // 土
		{"2025-05-05", "09:00"}, // 月
		{"2025-05-05", "14:00"}, // 月
		{"2025-05-06", "23:59"}, // 火 (UTC では水)
	}
	for i, st := range starts {
		p := s.person(fmt.Sprintf("P%d", i))
		e := s.notebook(fmt.Sprintf("NB-%03d", i))
		req := s.request(p, e)
		req.LoanDate, req.LoanTime = st.date, st.at
		req.DueDate, req.DueTime = "2025-05-10", "12:00"
		_, err := s.svc.CreateLoan(s.ctx, req)
		s.Require().NoError(err)
	}

	got, err := s.svc.WeeklyActivity(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int{2, 1, 1, 0, 0}, got.Data)
}

func (s *LoanSuite) TestReconcileRepairsDrift() {
	stranded := s.notebook("NB-001")
	held := s.notebook("NB-002")
	s.lend(s.person("Ana"), held)

	_, err := s.db.Exec(`UPDATE equipment SET status = 'loaned' WHERE id = ?`, stranded)
	s.Require().NoError(err)
	_, err = s.db.Exec(`UPDATE equipment SET status = 'available' WHERE id = ?`, held)
	s.Require().NoError(err)

	res, err := s.svc.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int64{stranded}, res.Released)
	s.Equal([]int64{held}, res.Marked)
	s.requireConsistent()

	res, err = s.svc.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Empty(res.Released)
	s.Empty(res.Marked)
}

func (s *LoanSuite) TestExportWorkbook() {
	loan := s.lend(s.person("Paula Lima"), s.notebook("NB-001"))

	var buf bytes.Buffer
	s.Require().NoError(s.svc.Export(s.ctx, ListFilter{}, &buf))

	f, err := excelize.OpenReader(&buf)
	s.Require().NoError(err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("ID", rows[0][0])
	s.Equal(fmt.Sprint(loan.ID), rows[1][0])
	s.Equal(loan.LoanULID, rows[1][1])
	s.Equal("Paula Lima", rows[1][3])
	s.Equal("2025-05-07 08:00", rows[1][7])
	s.Equal("Charger, mouse", rows[1][10])
}

func (s *LoanSuite) TestRunReconcilerStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.svc.RunReconciler(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("reconciler did not stop")
	}
}
