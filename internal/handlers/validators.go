package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sawaari/driveshare-backend/internal/models"
)

// RegisterValidators installs the custom binding tags used by request models
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("payment_mode", validatePaymentMode); err != nil {
		return fmt.Errorf("failed to register payment_mode validator: %w", err)
	}
	return nil
}

func validatePaymentMode(fl validator.FieldLevel) bool {
	return models.ValidPaymentMode(fl.Field().String())
}
