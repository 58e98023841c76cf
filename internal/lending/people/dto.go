package people

import "time"

type CreatePersonRequest struct {
	FullName     string  `json:"full_name" binding:"required,max=150"`
	Email        *string `json:"email,omitempty" binding:"omitempty,email"`
	NationalID   string  `json:"national_id" binding:"required,national_id"`
	EnrollmentID *string `json:"enrollment_id,omitempty" binding:"omitempty,max=40"`
	Kind         string  `json:"kind" binding:"required,oneof=admin standard"`
	Password     *string `json:"password,omitempty" binding:"omitempty,min=6"`
	Profile
}

// UpdatePersonRequest replaces every profile field. Kind is fixed at
// creation; the password only changes when one is sent.
type UpdatePersonRequest struct {
	FullName     string  `json:"full_name" binding:"required,max=150"`
	Email        *string `json:"email,omitempty" binding:"omitempty,email"`
	NationalID   string  `json:"national_id" binding:"required,national_id"`
	EnrollmentID *string `json:"enrollment_id,omitempty" binding:"omitempty,max=40"`
	Password     *string `json:"password,omitempty" binding:"omitempty,min=6"`
	Profile
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type PersonResponse struct {
	ID           int64   `json:"id"`
	FullName     string  `json:"full_name"`
	Email        *string `json:"email,omitempty"`
	NationalID   string  `json:"national_id"`
	EnrollmentID *string `json:"enrollment_id,omitempty"`
	Kind         string  `json:"kind"`
	Active       bool    `json:"active"`
	Profile
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func buildPersonResponse(p *Person) PersonResponse {
	resp := PersonResponse{
		ID:         p.ID,
		FullName:   p.FullName,
		NationalID: p.NationalID,
		Kind:       p.Kind,
		Active:     p.Active,
		Profile:    p.Profile,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.Email.Valid {
		v := p.Email.String
		resp.Email = &v
	}
	if p.EnrollmentID.Valid {
		v := p.EnrollmentID.String
		resp.EnrollmentID = &v
	}
	return resp
}
