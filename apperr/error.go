package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

// 通用错误码
const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeConflict            Code = "CONFLICT"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInternal            Code = "INTERNAL"
	CodeGearNotFound        Code = "GEAR_NOT_FOUND"
	CodeGearAmbiguous       Code = "GEAR_AMBIGUOUS"
	CodeGearAlreadyBorrowed Code = "GEAR_ALREADY_BORROWED"
	CodeNoUserSelected      Code = "NO_USER_SELECTED"
	CodeNothingToValidate   Code = "NOTHING_TO_VALIDATE"
	CodeNothingToCommit     Code = "NOTHING_TO_COMMIT"
	CodeConfirmPending      Code = "CONFIRMATION_PENDING"
	CodeNoPendingConfirm    Code = "NO_PENDING_CONFIRMATION"
	CodeSessionClosed       Code = "SESSION_CLOSED"
	CodeValidation          Code = "VALIDATION_FAILED"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Details 校验失败时逐字段说明
	Details any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WithDetails(code Code, msg string, details any) error {
	return &Error{Code: code, Message: msg, Details: details}
}

// As 取出 *Error；其它错误视为 INTERNAL
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}

func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func ToHTTPStatus(err error) int {
	switch As(err).Code {
	case CodeNotFound, CodeGearNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument, CodeValidation, CodeNothingToValidate, CodeNothingToCommit, CodeNoUserSelected:
		return http.StatusBadRequest
	case CodeConflict, CodeGearAlreadyBorrowed, CodeGearAmbiguous, CodeConfirmPending, CodeNoPendingConfirm:
		return http.StatusConflict
	case CodeSessionClosed:
		return http.StatusGone
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Body 响应体 {"error": {...}}；内部错误不向外暴露细节
func Body(err error) map[string]any {
	e := As(err)
	if e.Code == CodeInternal {
		e = &Error{Code: CodeInternal, Message: "internal error"}
	}
	return map[string]any{"error": e}
}
