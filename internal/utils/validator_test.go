// internal/utils/validator_test.go
package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connectRequest struct {
	ShopDomain string `validate:"required,shop_domain"`
	Name       string `validate:"required,min=3"`
}

func TestValidateStructShopDomain(t *testing.T) {
	assert.NoError(t, ValidateStruct(&connectRequest{
		ShopDomain: "acme-store.myshopify.com",
		Name:       "Acme",
	}))

	err := ValidateStruct(&connectRequest{
		ShopDomain: "acme-store.example.com",
		Name:       "Acme",
	})
	require.Error(t, err)

	errs := GetValidationErrors(err)
	require.Len(t, errs, 1)
	assert.Equal(t, "shopdomain", errs[0].Field)
	assert.Equal(t, "shop_domain", errs[0].Tag)
	assert.Equal(t, "Shop domain must be a valid *.myshopify.com domain", errs[0].Message)
}

func TestGetValidationErrorsUnwrapsWrappedErrors(t *testing.T) {
	err := ValidateStruct(&connectRequest{ShopDomain: "not-a-shop", Name: "ab"})
	require.Error(t, err)

	// Services wrap validation failures before returning them
	wrapped := fmt.Errorf("validation failed: %w", err)

	errs := GetValidationErrors(wrapped)
	require.Len(t, errs, 2)
	fields := []string{errs[0].Field, errs[1].Field}
	assert.ElementsMatch(t, []string{"shopdomain", "name"}, fields)
}

func TestGetValidationErrorsIgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, GetValidationErrors(fmt.Errorf("database error")))
	assert.Nil(t, GetValidationErrors(nil))
}
