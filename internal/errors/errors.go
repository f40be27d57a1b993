// Package errors provides categorized errors with component and context
// metadata.
//
//	err := errors.New(cause).
//		Component("oracle").
//		Category(errors.CategoryOracle).
//		Context("endpoint", url).
//		Build()
//
// Domain error types elsewhere in formscan implement CategorizedError so that
// IsCategory works on them without an EnhancedError wrapper.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory groups errors by the pipeline stage that produced them.
type ErrorCategory string

// CategorizedError is implemented by errors that know their own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryImageLoad     ErrorCategory = "image-load"
	CategoryBoundary      ErrorCategory = "boundary"
	CategoryEmptyRegion   ErrorCategory = "empty-region"
	CategoryClassifier    ErrorCategory = "classifier"
	CategoryOracle        ErrorCategory = "oracle"
	CategoryStore         ErrorCategory = "training-store"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryValidation    ErrorCategory = "validation"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryNetwork       ErrorCategory = "network"
	CategoryLabeling      ErrorCategory = "labeling"
	CategoryOCR           ErrorCategory = "ocr"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryGeneric       ErrorCategory = "generic"
)

// EnhancedError wraps an error with category, component and context.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.Category)
	}
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is reports category equality against another EnhancedError, otherwise
// defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

func (ee *EnhancedError) ErrorCategory() ErrorCategory { return ee.Category }

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.Context))
	maps.Copy(out, ee.Context)
	return out
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder around a formatted error.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// FileContext records the path of the file involved.
func (eb *ErrorBuilder) FileContext(path string) *ErrorBuilder {
	return eb.Context("file_path", path)
}

// Timing records how long the failing operation ran.
func (eb *ErrorBuilder) Timing(operation string, d time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	return eb.Context("duration_ms", d.Milliseconds())
}

// Build finalizes the error. Without an explicit category the category of a
// wrapped CategorizedError is inherited, else CategoryGeneric.
func (eb *ErrorBuilder) Build() *EnhancedError {
	category := eb.category
	if category == "" {
		var ce CategorizedError
		if eb.err != nil && stderrors.As(eb.err, &ce) {
			category = ce.ErrorCategory()
		} else {
			category = CategoryGeneric
		}
	}
	return &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// IsCategory reports whether any error in err's chain carries category.
func IsCategory(err error, category ErrorCategory) bool {
	for err != nil {
		if ce, ok := err.(CategorizedError); ok && ce.ErrorCategory() == category {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// CategoryOf returns the first category found in err's chain.
func CategoryOf(err error) ErrorCategory {
	var ce CategorizedError
	if stderrors.As(err, &ce) {
		return ce.ErrorCategory()
	}
	return CategoryGeneric
}

// NewStd creates a plain error, like the standard library's errors.New.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool    { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Unwrap(err error) error        { return stderrors.Unwrap(err) }
func Join(errs ...error) error      { return stderrors.Join(errs...) }
