package validator

import (
	"errors"
	"fmt"
	"strings"

	"fixly/pkg/logger"
	"fixly/pkg/model"

	"github.com/go-playground/validator/v10"
)

const (
	MinEtaMinutes = 15
	MaxEtaMinutes = 480
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BidValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBidValidator(log *logger.Logger) *BidValidator {
	return &BidValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *BidValidator) Validate(bid *model.Bid) error {
	if err := v.validate.Struct(bid); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	var errs ValidationErrors

	if bid.Amount <= 0 {
		errs = append(errs, ValidationError{
			Field:   "Amount",
			Message: fmt.Sprintf("amount must be positive, got %.2f", bid.Amount),
		})
	}

	if bid.EtaMinutes < MinEtaMinutes || bid.EtaMinutes > MaxEtaMinutes {
		errs = append(errs, ValidationError{
			Field:   "EtaMinutes",
			Message: fmt.Sprintf("eta_minutes must be between %d and %d, got %d", MinEtaMinutes, MaxEtaMinutes, bid.EtaMinutes),
		})
	}

	var materialsTotal float64
	for i, m := range bid.Materials {
		if m.Name == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("Materials[%d].Name", i),
				Message: "material name is required",
			})
		}
		if m.Cost <= 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("Materials[%d].Cost", i),
				Message: fmt.Sprintf("material cost must be positive, got %.2f", m.Cost),
			})
		}
		materialsTotal += m.Cost
	}

	// Materials itemize part of the quote; they cannot exceed it.
	if materialsTotal > bid.Amount {
		errs = append(errs, ValidationError{
			Field:   "Materials",
			Message: fmt.Sprintf("materials total (%.2f) exceeds bid amount (%.2f)", materialsTotal, bid.Amount),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "uuid4":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
