package common

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docrender/constants"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error returns a combined error wrapping ErrInvalidInput, or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, v.ErrorMessage())
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// Required - Common validation rules
func Required(fieldName string, value interface{}) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	if v, ok := value.(string); ok && strings.TrimSpace(v) == "" {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	return nil
}

// CacheKey accepts a single safe path segment.
func CacheKey(fieldName string, value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	if !constants.IsValidCacheKey(str) {
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: "must be 1-200 characters of [A-Za-z0-9._-] starting with a letter or digit",
		}
	}
	return nil
}

// AbsolutePath requires an absolute filesystem path.
func AbsolutePath(fieldName string, value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	if !filepath.IsAbs(str) {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be an absolute path"}
	}
	return nil
}

// Within returns a rule confining a path to root. An empty root accepts everything.
func Within(root string) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		if root == "" {
			return nil
		}
		str, ok := value.(string)
		if !ok {
			return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return &ValidationError{Field: fieldName, Value: value, Message: "upload root is not resolvable"}
		}
		rel, err := filepath.Rel(absRoot, filepath.Clean(str))
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return &ValidationError{Field: fieldName, Value: value, Message: "must be inside the upload root"}
		}
		return nil
	}
}

// ValidateAndReturnError returns the collected validation error, if any.
func ValidateAndReturnError(validator *Validator) error {
	return validator.Error()
}
