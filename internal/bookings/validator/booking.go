package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fixly/pkg/logger"
	"fixly/pkg/model"

	"github.com/go-playground/validator/v10"
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

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("answers_map", validateAnswersMap); err != nil {
		log.Fatal("Failed to register 'answers_map' validator", "error", err)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

// validateAnswersMap bounds the structured service-question answers: nonempty
// keys, at most 50 entries, values capped at 500 characters.
func validateAnswersMap(fl validator.FieldLevel) bool {
	value := fl.Field()
	if value.IsNil() {
		return true
	}

	answers, ok := value.Interface().(map[string]string)
	if !ok {
		return false
	}

	if len(answers) > 50 {
		return false
	}

	for key, val := range answers {
		if key == "" || len(val) > 500 {
			return false
		}
	}
	return true
}

func (v *BookingValidator) Validate(booking *model.Booking) error {
	if err := v.validate.Struct(booking); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	if booking.ScheduledAt == nil && !booking.Asap {
		return ValidationErrors{
			ValidationError{
				Field:   "ScheduledAt",
				Message: "either scheduled_at or asap must be set",
			},
		}
	}

	if booking.ScheduledAt != nil && booking.ScheduledAt.Before(time.Now()) {
		return ValidationErrors{
			ValidationError{
				Field:   "ScheduledAt",
				Message: "scheduled_at cannot be in the past",
			},
		}
	}

	if booking.PriceMax < booking.PriceMin {
		return ValidationErrors{
			ValidationError{
				Field:   "PriceMax",
				Message: fmt.Sprintf("price_max (%.2f) must be at least price_min (%.2f)", booking.PriceMax, booking.PriceMin),
			},
		}
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
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "uuid4":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		case "gtefield":
			message = fmt.Sprintf("%s must not be less than %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
