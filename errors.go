package action

import (
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeDisabled   = "ACTION_DISABLED"
	ErrCodeWorkFailed = "ACTION_WORK_FAILED"
	ErrCodeWorkPanic  = "ACTION_WORK_PANIC"
	ErrCodeNoWork     = "ACTION_NO_WORK"
)

var (
	ErrDisabled = apperrors.New("action is disabled", apperrors.CategoryConflict).
			WithTextCode(ErrCodeDisabled)
	ErrWorkFailed = apperrors.New("action work failed", apperrors.CategoryHandler).
			WithTextCode(ErrCodeWorkFailed)
	ErrWorkPanic = apperrors.New("action work panicked", apperrors.CategoryHandler).
			WithTextCode(ErrCodeWorkPanic)
	ErrNoWork = apperrors.New("action has no work factory", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeNoWork)
)

// ErrorKind tells the two ActionError variants apart.
type ErrorKind int

const (
	// ErrorKindDisabled means the attempt was rejected because the action
	// was not enabled. No work ran.
	ErrorKindDisabled ErrorKind = iota
	// ErrorKindWorkFailed means the work ran and failed with Err.
	ErrorKindWorkFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindDisabled:
		return "disabled"
	case ErrorKindWorkFailed:
		return "work_failed"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// ActionError is the failure type of every stream returned by Apply.
type ActionError struct {
	Kind   ErrorKind
	Action string
	Err    error
}

func newDisabledError(action string) *ActionError {
	return &ActionError{Kind: ErrorKindDisabled, Action: action}
}

func newWorkFailedError(action string, err error) *ActionError {
	return &ActionError{Kind: ErrorKindWorkFailed, Action: action, Err: err}
}

func (e *ActionError) Error() string {
	name := "action"
	if e.Action != "" {
		name = fmt.Sprintf("action %q", e.Action)
	}
	if e.Kind == ErrorKindDisabled {
		return name + " is disabled"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", name, e.Err)
	}
	return name + " failed"
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Is matches the ErrDisabled and ErrWorkFailed sentinels by kind.
func (e *ActionError) Is(target error) bool {
	switch target {
	case error(ErrDisabled):
		return e.Kind == ErrorKindDisabled
	case error(ErrWorkFailed):
		return e.Kind == ErrorKindWorkFailed
	}
	return false
}

// AppError renders e as a go-errors value carrying the action name in
// its metadata and the work error as source.
func (e *ActionError) AppError() *apperrors.Error {
	base := ErrDisabled
	if e.Kind == ErrorKindWorkFailed {
		base = ErrWorkFailed
	}
	return cloneActionError(base, "", e.Err, map[string]any{
		"action": e.Action,
		"kind":   e.Kind.String(),
	})
}

// IsDisabled reports whether err is, or wraps, a rejected attempt.
func IsDisabled(err error) bool {
	var ae *ActionError
	return stderrors.As(err, &ae) && ae.Kind == ErrorKindDisabled
}

// IsWorkFailed reports whether err is, or wraps, a failed execution.
func IsWorkFailed(err error) bool {
	var ae *ActionError
	return stderrors.As(err, &ae) && ae.Kind == ErrorKindWorkFailed
}

func cloneActionError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func errorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}
