package common

import "errors"

// AppError is an error that knows how it is shown to storefront clients:
// a stable Code, a customer-safe Message and the HTTP status to use. Err is
// kept for logs and errors.Is/As but never rendered.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithDetails returns a copy carrying details.
func (e *AppError) WithDetails(details any) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Details = details
	return &clone
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// renderer is implemented by errors from other layers, such as upstream API
// replies or voucher rejections, that build their own client rendering.
type renderer interface {
	error
	AppError() *AppError
}

// AsAppError finds the client rendering of err: an *AppError in its chain, or
// the rendering offered by an error that implements AppError().
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	var r renderer
	if errors.As(err, &r) {
		if appErr = r.AppError(); appErr != nil {
			return appErr, true
		}
	}
	return nil, false
}
