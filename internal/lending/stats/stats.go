// Package stats aggregates the dashboard numbers.
package stats

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"notebook-lending/internal/lending/equipment"
	"notebook-lending/internal/lending/loans"
	"notebook-lending/internal/lending/people"
)

type EquipmentCounts struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Loaned    int64 `json:"loaned"`
	Disabled  int64 `json:"disabled"`
}

type PeopleCounts struct {
	ActiveStandard int64 `json:"active_standard"`
	ActiveAdmin    int64 `json:"active_admin"`
}

type Summary struct {
	Equipment EquipmentCounts `json:"equipment"`
	People    PeopleCounts    `json:"people"`
}

type Service struct {
	db    *sql.DB
	equip *equipment.Store
	loans *loans.Service
	log   *zap.Logger
}

func NewService(conn *sql.DB, loanSvc *loans.Service, log *zap.Logger) *Service {
	return &Service{
		db:    conn,
		equip: equipment.NewStore(conn),
		loans: loanSvc,
		log:   log,
	}
}

// Summary reads each count with its own query; the numbers are a
// snapshot and may drift by one under concurrent writes.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	byStatus, err := s.equip.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := &Summary{
		Equipment: EquipmentCounts{
			Available: byStatus[equipment.StatusAvailable],
			Loaned:    byStatus[equipment.StatusLoaned],
			Disabled:  byStatus[equipment.StatusDisabled],
		},
	}
	for _, n := range byStatus {
		out.Equipment.Total += n
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM people WHERE active = 1 GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		switch kind {
		case people.KindStandard:
			out.People.ActiveStandard = n
		case people.KindAdmin:
			out.People.ActiveAdmin = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Weekly(ctx context.Context) (*loans.WeeklyActivity, error) {
	return s.loans.WeeklyActivity(ctx)
}
