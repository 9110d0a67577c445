package portal

import (
	stderrors "errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

var errInvalidPhone = stderrors.New("must be a valid phone number")

// DefaultPhoneRegion is used to parse numbers without a country prefix
var DefaultPhoneRegion = "US"

// Validate will run validation rules. Identifiers containing "@" must be
// emails, anything else must be a plain username.
func (r Credentials) Validate() error {
	identifierRules := []validation.Rule{validation.Required}
	if strings.Contains(r.UsernameOrEmail, "@") {
		identifierRules = append(identifierRules, is.Email)
	} else {
		identifierRules = append(identifierRules,
			validation.Match(usernamePattern).Error("must contain only letters, digits, dots, dashes or underscores"),
		)
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.UsernameOrEmail, identifierRules...),
		validation.Field(&r.Password, validation.Required),
	)
}

// Validate will run validation rules
func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50), validation.Match(usernamePattern)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.PhoneNumber, validation.By(validPhoneNumber)),
	)
}

func validPhoneNumber(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errInvalidPhone
	}
	return nil
}

// FormatValidationErrorToMap flattens ozzo errors into field messages
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	verrs, ok := err.(validation.Errors)
	if !ok {
		out["form"] = err.Error()
		return out
	}

	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}
	return out
}

func validationFailure(err error, message string) *errors.Error {
	return errors.Wrap(err, errors.CategoryValidation, message).
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{"fields": FormatValidationErrorToMap(err)})
}
