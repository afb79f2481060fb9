package types

import (
	"errors"
	"fmt"
)

// TransportError 表示网络失败、超时或非 2xx HTTP 状态，可重试。
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("transport %s: http %d: %s", e.Op, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("transport %s: http %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport %s failed", e.Op)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// VenueError 表示交易所在响应信封里拒绝了请求（code != "0"）。
type VenueError struct {
	Code string
	Msg  string
}

func (e *VenueError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("venue error code=%s", e.Code)
	}
	return fmt.Sprintf("venue error code=%s: %s", e.Code, e.Msg)
}

// ValidationError 表示本地输入非法，不可重试。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// Invalid 构造 ValidationError。
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StateConflictError 表示该 key 已存在活跃仓位。
type StateConflictError struct {
	Key PositionKey
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict: active position already exists for %s", e.Key)
}

// DecryptionError 表示凭据解密失败，致命。
type DecryptionError struct {
	Field string
	Err   error
}

func (e *DecryptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decrypt %s failed", e.Field)
	}
	return fmt.Sprintf("decrypt %s failed: %v", e.Field, e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *StateConflictError
	return errors.As(err, &c)
}

func IsVenue(err error) bool {
	var v *VenueError
	return errors.As(err, &v)
}

func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}
