package equipment

import (
	"database/sql"
	"time"
)

const (
	StatusAvailable = "available"
	StatusLoaned    = "loaned"
	StatusDisabled  = "disabled"
)

type Equipment struct {
	ID              int64
	AssetTag        string
	SerialNumber    string
	Model           string
	Brand           string
	AcquisitionYear sql.NullInt64
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
