package loans

import (
	"database/sql"
	"time"
)

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Labels used when a loan outlives the person or notebook it references.
const (
	DeletedPersonLabel    = "Deleted user"
	DeletedEquipmentLabel = "Deleted notebook"
	MissingFieldLabel     = "N/A"
)

type Loan struct {
	ID          int64
	LoanULID    string
	PersonID    int64
	EquipmentID int64
	LoanedAt    time.Time
	DueAt       time.Time
	ReturnedAt  sql.NullTime
	PickupNotes string
	ReturnNotes string
	Status      string
	CreatedAt   time.Time
	Accessories []string
}

// LoanView is a loan joined with the display fields of its references.
// The joined columns are null when the reference was deleted.
type LoanView struct {
	Loan
	PersonName       sql.NullString
	PersonNationalID sql.NullString
	EquipmentTag     sql.NullString
	EquipmentModel   sql.NullString
}

type ListFilter struct {
	Status *string
}
