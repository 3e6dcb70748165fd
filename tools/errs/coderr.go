package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error taxonomy for the sync engine. Every error that crosses an ack or an
// HTTP response boundary is one of these codes; anything else is wrapped into
// ErrPermanent before it leaves the process.
const (
	CodeAccessDenied = 1403 // caller is not a participant of the conversation
	CodeNotFound     = 1404 // conversation or message absent
	CodeValidation   = 1400 // missing/malformed field
	CodeTransient    = 1503 // storage/transport unavailable, caller may retry
	CodePermanent    = 1500 // malformed request, not retryable
)

var (
	ErrAccessDenied = NewCodeError(CodeAccessDenied, "access denied")
	ErrNotFound     = NewCodeError(CodeNotFound, "not found")
	ErrValidation   = NewCodeError(CodeValidation, "validation error")
	ErrTransient    = NewCodeError(CodeTransient, "transient error")
	ErrPermanent    = NewCodeError(CodePermanent, "permanent error")
)

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// WrapMsg clones the code error and appends a formatted detail built from
// alternating key/value pairs.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return retErr
}

func (e *CodeError) Is(err error) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return e.Code == codeErr.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Code extracts the taxonomy code from err, or CodePermanent when err carries
// none.
func Code(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodePermanent
}

// Msg extracts the user-facing message from err.
func Msg(err error) string {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		if codeErr.Detail != "" {
			return codeErr.Msg + ": " + codeErr.Detail
		}
		return codeErr.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// New builds a permanent error from a free-form message plus key/value pairs.
func New(msg string, kv ...any) error {
	return &CodeError{Code: CodePermanent, Msg: toString(msg, kv)}
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		sb.WriteString(" ")
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		}
	}
	return sb.String()
}
