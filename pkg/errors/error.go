package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is a coded failure. Message is what the caller sees; Err keeps the
// cause for logs and errors.Is.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error carrying the code's default message.
func New(code ErrorCode) *Error {
	return &Error{Code: code, Message: code.Message()}
}

func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to err and keeps err's text as the message.
// A coded error is re-coded in place.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		coded.Code = code
		return coded
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, 2)
	}
	e.Details[key] = value
	return e
}

// As finds the first coded error in err's chain.
func As(err error) (*Error, bool) {
	var coded *Error
	if err == nil || !stderrors.As(err, &coded) {
		return nil, false
	}
	return coded, true
}

// GetCode reports the code of err. Uncoded errors are InternalServerError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	if coded, ok := As(err); ok {
		return coded.Code
	}
	return InternalServerError
}

// Is reports whether any coded error in err's chain has code.
func Is(err error, code ErrorCode) bool {
	coded, ok := As(err)
	return ok && coded.Code == code
}

// ValidationError reports a malformed field.
func ValidationError(field, reason string) *Error {
	return Newf(ValidationFailed, "%s %s", field, reason).WithDetail("field", field)
}

// UnsupportedLanguage reports a language id that no adapter is registered for.
func UnsupportedLanguage(language string) *Error {
	return New(LanguageNotSupported).WithDetail("language", language)
}
