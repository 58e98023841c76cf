package equipment

import "time"

type RegisterRequest struct {
	Tag    string `json:"tag" binding:"required,max=50"`
	Serial string `json:"serial" binding:"required,max=100"`
	Model  string `json:"model" binding:"required,max=100"`
	Brand  string `json:"brand" binding:"required,max=100"`
	Year   *int   `json:"year,omitempty" binding:"omitempty,min=1980,max=2100"`
}

// UpdateRequest replaces every mutable field, status included.
type UpdateRequest struct {
	Tag    string `json:"tag" binding:"required,max=50"`
	Serial string `json:"serial" binding:"required,max=100"`
	Model  string `json:"model" binding:"required,max=100"`
	Brand  string `json:"brand" binding:"required,max=100"`
	Year   *int   `json:"year,omitempty" binding:"omitempty,min=1980,max=2100"`
	Status string `json:"status" binding:"required,oneof=available loaned disabled"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=available loaned disabled"`
}

type EquipmentResponse struct {
	ID        int64     `json:"id"`
	Tag       string    `json:"tag"`
	Serial    string    `json:"serial"`
	Model     string    `json:"model"`
	Brand     string    `json:"brand"`
	Year      *int      `json:"year,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func buildEquipmentResponse(e *Equipment) EquipmentResponse {
	resp := EquipmentResponse{
		ID:        e.ID,
		Tag:       e.AssetTag,
		Serial:    e.SerialNumber,
		Model:     e.Model,
		Brand:     e.Brand,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.AcquisitionYear.Valid {
		y := int(e.AcquisitionYear.Int64)
		resp.Year = &y
	}
	return resp
}
