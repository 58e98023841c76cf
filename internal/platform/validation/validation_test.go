package validation

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebook-lending/internal/platform/apperr"
)

type loanForm struct {
	LoanDate   string `json:"loan_date" validate:"required,isodate"`
	LoanTime   string `json:"loan_time" validate:"required,hhmm"`
	NationalID string `json:"national_id" validate:"omitempty,national_id"`
	PostalCode string `json:"postal_code" validate:"omitempty,postal_code"`
}

func newValidator(t *testing.T) *validator.Validate {
	v := validator.New()
	require.NoError(t, RegisterRules(v))
	return v
}

func TestRules(t *testing.T) {
	v := newValidator(t)

	ok := loanForm{LoanDate: "2024-02-29", LoanTime: "23:59", NationalID: "123.456.789-09", PostalCode: "01001-000"}
	assert.NoError(t, v.Struct(ok))

	bad := []loanForm{
		{LoanDate: "2023-02-29", LoanTime: "10:00"},
		{LoanDate: "29/02/2024", LoanTime: "10:00"},
		{LoanDate: "2024-01-01", LoanTime: "24:00"},
		{LoanDate: "2024-01-01", LoanTime: "9:00"},
		{LoanDate: "2024-01-01", LoanTime: "09:00", NationalID: "1234"},
		{LoanDate: "2024-01-01", LoanTime: "09:00", PostalCode: "0100"},
	}
	for _, f := range bad {
		assert.Error(t, v.Struct(f), "%+v", f)
	}
}

func TestBindErrorNamesField(t *testing.T) {
	v := newValidator(t)
	err := BindError(v.Struct(loanForm{LoanDate: "nope", LoanTime: "10:00"}))

	var api *apperr.APIError
	require.True(t, errors.As(err, &api))
	assert.Equal(t, apperr.CodeInvalidArgument, api.Code)
	assert.Equal(t, "loan_date", api.Field)

	assert.True(t, apperr.Is(BindError(errors.New("EOF")), apperr.CodeInvalidArgument))
}

func TestNormalizeNationalID(t *testing.T) {
	assert.Equal(t, "12345678909", NormalizeNationalID("123.456.789-09"))
	assert.Equal(t, "12345678909", NormalizeNationalID("12345678909"))
}
