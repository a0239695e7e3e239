package activity

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the Engine matches exactly one of
// these with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStore           = errors.New("store error")
)

// Stable failure messages.
const (
	MsgOperatorNotFound    = "operator not found"
	MsgOperatorInactive    = "operator is inactive"
	MsgProcessNotFound     = "process not found"
	MsgProcessInactive     = "process is inactive"
	MsgWorkOrderNotFound   = "work order not found"
	MsgWorkOrderClosed     = "work order is not available"
	MsgMachineNotFound     = "machine not found"
	MsgMachineInactive     = "machine is inactive"
	MsgHeadNotFound        = "machine head not found"
	MsgHeadsUnavailable    = "machine head has an open problem"
	MsgNoMachine           = "activity has no machine"
	MsgProblemNotFound     = "problem not found"
	MsgProblemOpen         = "head already has an open problem"
	MsgProblemResolved     = "problem is already resolved"
	MsgActivityNotFound    = "activity not found"
	MsgSessionOpen         = "operator already has an open activity"
	MsgNotActive           = "activity is not active"
	MsgNotPaused           = "activity is not paused"
	MsgNotOpen             = "activity is already closed"
	MsgConcurrentUpdate    = "activity is being updated concurrently"
	MsgPieceExceedsPlan    = "piece number exceeds planned quantity"
	MsgPieceDuplicate      = "piece already registered"
	MsgNegativePieceTime   = "piece time is negative"
	MsgRealizedRequired    = "realized quantity is required when no pieces were registered"
	MsgRealizedExceedsCap  = "realized quantity exceeds planned by too much"
	MsgScrapReasonRequired = "scrap reason is required when scrap quantity is positive"
)

// Error is the concrete error returned by the Engine.
type Error struct {
	Kind       error  // one of the Err* kinds
	Msg        string // stable message, one of the Msg* constants or a validation message
	Detail     string // optional human detail (numbers, ids)
	ActivityID string // blocking activity for single-session conflicts
	Err        error  // underlying store error, if any
}

func (e *Error) Error() string {
	s := "activity: " + e.Msg
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or nil when err did not come from
// the Engine.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func invalidArg(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func storeErr(action string, err error) *Error {
	return &Error{Kind: ErrStore, Msg: action, Err: err}
}
