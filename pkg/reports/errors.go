// Package reports implements the per-farm daily report questionnaire and
// the submission engine that validates and stores answers.
package reports

import "errors"

// ValidationError is returned when the submitted input is malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

var (
	ErrDuplicateSubmission   = errors.New("a report for this date has already been submitted")
	ErrUnknownQuestion       = errors.New("answer references a question that is not part of the farm's report")
	ErrMissingRequiredAnswer = errors.New("required question was not answered")
	ErrReportNotFound        = errors.New("report not found")
	ErrQuestionNotFound      = errors.New("question not found")

	// ErrNoFarm is a validation error: the caller has not joined a farm.
	ErrNoFarm = &ValidationError{Field: "farm", Message: "user has no farm"}
)
