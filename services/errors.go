package services

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var (
	// ErrNotFound matches every *NotFoundError through errors.Is
	ErrNotFound = errors.New("not found")
	// ErrValidation matches every *ValidationError through errors.Is
	ErrValidation = errors.New("validation failed")
)

// NotFoundError reports a referenced case, client, lawyer or user that does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports malformed input to a case mutation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func notFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// lookupError maps gorm.ErrRecordNotFound to a NotFoundError and wraps anything else
func lookupError(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(resource, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", resource, id, err)
}

// validationFromValidator turns the first validator field error into a ValidationError
func validationFromValidator(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag())}
	}
	return &ValidationError{Message: err.Error()}
}
