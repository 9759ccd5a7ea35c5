package reporting

import (
	"errors"
	"fmt"

	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrReportNotFound   = errors.New("report not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateName    = errors.New("project name already exists")
	ErrBaselineRequired = errors.New("baseline date is required on the first report of a project")
	ErrDuplicateMonth   = storage.ErrDuplicateMonth
)

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
