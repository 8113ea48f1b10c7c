package tokenauth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

type registrationRequest struct {
	Email       string
	DisplayName string
}

// Validate checks the email and display name bounds.
func (r registrationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.DisplayName, validation.Length(0, 200)),
	)
}

func validateRegistration(email, displayName string) error {
	return registrationRequest{
		Email:       strings.TrimSpace(email),
		DisplayName: strings.TrimSpace(displayName),
	}.Validate()
}
