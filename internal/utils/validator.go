// internal/utils/validator.go
package utils

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("shop_domain", validateShopDomain)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateShopDomain(fl validator.FieldLevel) bool {
	return shopDomainPattern.MatchString(strings.ToLower(fl.Field().String()))
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// GetValidationErrors extracts field-level validation failures from err,
// unwrapping service-layer wrapping. Nil for non-validation errors.
func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "shop_domain":
		return "Shop domain must be a valid *.myshopify.com domain"
	default:
		return e.Field() + " is invalid"
	}
}
