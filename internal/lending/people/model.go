package people

import (
	"database/sql"
	"time"
)

const (
	KindAdmin    = "admin"
	KindStandard = "standard"

	// PrimaryAdminID is the first administrator; it can never be deactivated
	// or deleted.
	PrimaryAdminID int64 = 1
)

type Person struct {
	ID           int64
	FullName     string
	Email        sql.NullString
	NationalID   string
	EnrollmentID sql.NullString
	Kind         string
	Active       bool
	PasswordHash string
	Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile holds the contact and demographic fields. All optional.
type Profile struct {
	Phone        string `json:"phone"`
	BirthDate    string `json:"birth_date" binding:"omitempty,isodate"`
	Gender       string `json:"gender"`
	Course       string `json:"course"`
	Term         string `json:"term"`
	Shift        string `json:"shift"`
	PostalCode   string `json:"postal_code" binding:"omitempty,postal_code"`
	Street       string `json:"street"`
	StreetNumber string `json:"street_number"`
	District     string `json:"district"`
	City         string `json:"city"`
	State        string `json:"state" binding:"omitempty,len=2"`
	Complement   string `json:"complement"`
}

type ListFilter struct {
	Kind   *string
	Active *bool
}
