package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 打卡模块错误。
var (
	InvalidDate     = Definition{Code: "INVALID_DATE", Message: "Invalid date, expected YYYY-MM-DD"}
	InvalidRange    = Definition{Code: "INVALID_RANGE", Message: "start_date must not be after end_date"}
	InvalidTimezone = Definition{Code: "INVALID_TIMEZONE", Message: "Invalid timezone"}
	LedgerNotLoaded = Definition{Code: "LEDGER_NOT_LOADED", Message: "Check-in ledger has not been loaded"}
)

// 持久化错误，均为非致命：内存中的状态在下一次写入成功前保持权威。
var (
	PersistenceWriteFailed = Definition{Code: "PERSISTENCE_WRITE_FAILED", Message: "Failed to persist check-in ledger"}
	PersistenceLoadFailed  = Definition{Code: "PERSISTENCE_LOAD_FAILED", Message: "Failed to load check-in ledger"}
)

// 提醒投递错误，非致命，下一次对账自然重试。
var (
	SinkArmFailed    = Definition{Code: "SINK_ARM_FAILED", Message: "Failed to arm reminder notification"}
	SinkCancelFailed = Definition{Code: "SINK_CANCEL_FAILED", Message: "Failed to cancel reminder notification"}
	SinkUnavailable  = Definition{Code: "SINK_UNAVAILABLE", Message: "Notification sink temporarily unavailable"}
)

// 设备绑定错误。
var (
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidDeviceID = Definition{Code: "INVALID_DEVICE_ID", Message: "Invalid device ID format"}
	DeviceNotBound  = Definition{Code: "DEVICE_NOT_BOUND", Message: "Ledger is bound to another device"}
	AuthDisabled    = Definition{Code: "AUTH_DISABLED", Message: "Device authentication is disabled"}
)

// 令牌相关哨兵错误，由 errors.Is 判断。
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator is not initialized")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
	ErrDeviceIDNotFound             = stderrors.New("device id not found in token")
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidDate.Code:            InvalidDate,
	InvalidRange.Code:           InvalidRange,
	InvalidTimezone.Code:        InvalidTimezone,
	LedgerNotLoaded.Code:        LedgerNotLoaded,
	PersistenceWriteFailed.Code: PersistenceWriteFailed,
	PersistenceLoadFailed.Code:  PersistenceLoadFailed,
	SinkArmFailed.Code:          SinkArmFailed,
	SinkCancelFailed.Code:       SinkCancelFailed,
	SinkUnavailable.Code:        SinkUnavailable,
	Unauthorized.Code:           Unauthorized,
	InvalidDeviceID.Code:        InvalidDeviceID,
	DeviceNotBound.Code:         DeviceNotBound,
	AuthDisabled.Code:           AuthDisabled,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// Error 携带底层原因的业务错误，errors.Is 可同时匹配 Definition 与原因。
type Error struct {
	Cause error
	Definition
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if def, ok := target.(Definition); ok {
		return def.Code == e.Code
	}
	return false
}

// Wrap 将底层错误包装为业务错误
func Wrap(def Definition, cause error) error {
	return &Error{Definition: def, Cause: cause}
}

// As 取出错误链上的 Definition
func As(err error) (Definition, bool) {
	var wrapped *Error
	if stderrors.As(err, &wrapped) {
		return wrapped.Definition, true
	}
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}

// SkipMessageError 消费端可安全跳过（直接 ack，不重试）的消息
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

func IsSkipMessageError(err error) bool {
	var skip *SkipMessageError
	return stderrors.As(err, &skip)
}
