package loans

import (
	"time"
)

type CreateLoanRequest struct {
	PersonID    int64    `json:"person_id" binding:"required,gt=0"`
	EquipmentID int64    `json:"equipment_id" binding:"required,gt=0"`
	LoanDate    string   `json:"loan_date" binding:"required,isodate"`
	LoanTime    string   `json:"loan_time" binding:"required,hhmm"`
	DueDate     string   `json:"due_date" binding:"required,isodate"`
	DueTime     string   `json:"due_time" binding:"required,hhmm"`
	Notes       string   `json:"notes" binding:"max=2000"`
	Accessories []string `json:"accessories" binding:"max=20,dive,max=100"`
}

type CloseLoanRequest struct {
	ReturnNotes string `json:"return_notes" binding:"max=2000"`
}

type PersonRef struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	NationalID string `json:"national_id"`
}

type EquipmentRef struct {
	ID    int64  `json:"id"`
	Tag   string `json:"tag"`
	Model string `json:"model"`
}

type LoanResponse struct {
	ID          int64        `json:"id"`
	LoanULID    string       `json:"loan_ulid"`
	Status      string       `json:"status"`
	Person      PersonRef    `json:"person"`
	Equipment   EquipmentRef `json:"equipment"`
	LoanedAt    time.Time    `json:"loaned_at"`
	DueAt       time.Time    `json:"due_at"`
	ReturnedAt  *time.Time   `json:"returned_at,omitempty"`
	PickupNotes string       `json:"pickup_notes"`
	ReturnNotes string       `json:"return_notes"`
	Accessories []string     `json:"accessories"`
}

func buildLoanResponse(v *LoanView) LoanResponse {
	resp := LoanResponse{
		ID:       v.ID,
		LoanULID: v.LoanULID,
		Status:   v.Status,
		Person: PersonRef{
			ID:         v.PersonID,
			Name:       orLabel(v.PersonName.String, v.PersonName.Valid, DeletedPersonLabel),
			NationalID: orLabel(v.PersonNationalID.String, v.PersonNationalID.Valid, MissingFieldLabel),
		},
		Equipment: EquipmentRef{
			ID:    v.EquipmentID,
			Tag:   orLabel(v.EquipmentTag.String, v.EquipmentTag.Valid, DeletedEquipmentLabel),
			Model: orLabel(v.EquipmentModel.String, v.EquipmentModel.Valid, MissingFieldLabel),
		},
		LoanedAt:    v.LoanedAt,
		DueAt:       v.DueAt,
		PickupNotes: v.PickupNotes,
		ReturnNotes: v.ReturnNotes,
		Accessories: v.Accessories,
	}
	if resp.Accessories == nil {
		resp.Accessories = []string{}
	}
	if v.ReturnedAt.Valid {
		t := v.ReturnedAt.Time
		resp.ReturnedAt = &t
	}
	return resp
}

func orLabel(s string, valid bool, label string) string {
	if !valid || s == "" {
		return label
	}
	return s
}

// OptionsResponse feeds the loan form: who may borrow and what is on the
// shelf right now.
type OptionsResponse struct {
	People    []PersonOption    `json:"people"`
	Equipment []EquipmentOption `json:"equipment"`
}

type PersonOption struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	NationalID string `json:"national_id"`
}

type EquipmentOption struct {
	ID    int64  `json:"id"`
	Tag   string `json:"tag"`
	Model string `json:"model"`
	Brand string `json:"brand"`
}

type WeeklyActivity struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

type ReconcileResult struct {
	// Released are loaned items with no open loan, set back to available.
	Released []int64 `json:"released"`
	// Marked are items referenced by an open loan that were not loaned.
	Marked []int64 `json:"marked_loaned"`
}
