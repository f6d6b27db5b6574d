// Package errors defines the application error taxonomy and its handling helpers.
package errors

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes.
const (
	CodeValidation        = "E100"
	CodeDatabase          = "E200"
	CodeInsufficientFunds = "E210"
	CodeBalanceOverflow   = "E220"
	CodeNoEligibleMembers = "E230"
	CodeExternalAPI       = "E300"
	CodeState             = "E400"
	CodeRateLimit         = "E500"
	CodePermission        = "E600"
	CodeChannel           = "E610"
	CodeCooldown          = "E700"
	CodeUnknown           = "E900"
)

// Message keys resolved through the i18n bundle.
const (
	MsgInvalidAmount     = "error.invalid_amount"
	MsgInvalidTarget     = "error.invalid_target"
	MsgBotTarget         = "error.bot_target"
	MsgReasonTooLong     = "error.reason_too_long"
	MsgTemporary         = "error.temporary"
	MsgUnknown           = "error.unknown"
	MsgInsufficientFunds = "error.insufficient_funds"
	MsgBalanceOverflow   = "error.balance_overflow"
	MsgNoEligibleMembers = "error.no_eligible_members"
	MsgExternalAPI       = "error.external_api"
	MsgInProgress        = "error.in_progress"
	MsgRateLimited       = "error.rate_limited"
	MsgPermissionDenied  = "error.permission_denied"
	MsgManagerOnly       = "error.manager_only"
	MsgChannelNotAllowed = "error.channel_not_allowed"
	MsgCooldown          = "error.cooldown"
	MsgReplyRequired     = "error.reply_required"
)

// AppError carries a stable code, a log message and the i18n key shown to the user.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Params      map[string]any
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// NewValidationError reports bad user input. userMessage is the i18n key to show.
func NewValidationError(userMessage, msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: userMessage,
		Severity:    SeverityLow,
	}
}

// NewReasonTooLongError reports a reason longer than limit characters.
func NewReasonTooLongError(limit int) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     fmt.Sprintf("reason longer than %d characters", limit),
		UserMessage: MsgReasonTooLong,
		Params:      map[string]any{"Limit": limit},
		Severity:    SeverityLow,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeDatabase,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: MsgTemporary,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewInsufficientFundsError(amount int64, cause error) *AppError {
	return &AppError{
		Code:        CodeInsufficientFunds,
		Message:     fmt.Sprintf("insufficient funds for %d", amount),
		UserMessage: MsgInsufficientFunds,
		Params:      map[string]any{"Amount": amount},
		Severity:    SeverityLow,
		cause:       cause,
	}
}

func NewBalanceOverflowError(cause error) *AppError {
	return &AppError{
		Code:        CodeBalanceOverflow,
		Message:     "balance would exceed the maximum",
		UserMessage: MsgBalanceOverflow,
		Severity:    SeverityMedium,
		cause:       cause,
	}
}

func NewNoEligibleMembersError(roleID int64) *AppError {
	return &AppError{
		Code:        CodeNoEligibleMembers,
		Message:     fmt.Sprintf("role %d has no eligible members", roleID),
		UserMessage: MsgNoEligibleMembers,
		Params:      map[string]any{"RoleID": roleID},
		Severity:    SeverityLow,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeExternalAPI,
		Message:     fmt.Sprintf("External API error: %s", apiName),
		UserMessage: MsgExternalAPI,
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: MsgInProgress,
		Severity:    SeverityLow,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: MsgRateLimited,
		Params:      map[string]any{"Seconds": retryAfter},
		Severity:    SeverityLow,
	}
}

func NewPermissionDeniedError(userID int64) *AppError {
	return &AppError{
		Code:        CodePermission,
		Message:     fmt.Sprintf("user %d lacks permission", userID),
		UserMessage: MsgPermissionDenied,
		Severity:    SeverityLow,
	}
}

// NewManagerOnlyError is returned when a settings command is used by someone who is not a
// guild manager.
func NewManagerOnlyError(userID int64) *AppError {
	return &AppError{
		Code:        CodePermission,
		Message:     fmt.Sprintf("user %d is not a guild manager", userID),
		UserMessage: MsgManagerOnly,
		Severity:    SeverityLow,
	}
}

func NewChannelNotAllowedError(channelID int64) *AppError {
	return &AppError{
		Code:        CodeChannel,
		Message:     fmt.Sprintf("channel %d is not allow-listed", channelID),
		UserMessage: MsgChannelNotAllowed,
		Severity:    SeverityLow,
	}
}

// NewCooldownError reports the time left before a timed reward can be claimed again.
func NewCooldownError(remaining time.Duration) *AppError {
	minutes, seconds := SplitRemaining(remaining)
	return &AppError{
		Code:        CodeCooldown,
		Message:     fmt.Sprintf("cooldown active: %dm%02ds left", minutes, seconds),
		UserMessage: MsgCooldown,
		Params:      map[string]any{"Minutes": minutes, "Seconds": seconds},
		Severity:    SeverityLow,
	}
}

// NewUnknownError wraps an error outside the taxonomy.
func NewUnknownError(cause error) *AppError {
	var msg string
	if cause != nil {
		msg = cause.Error()
	}

	return &AppError{
		Code:        CodeUnknown,
		Message:     msg,
		UserMessage: MsgUnknown,
		Severity:    SeverityHigh,
		cause:       cause,
	}
}

// SplitRemaining truncates d to whole seconds and splits it into minutes and seconds.
func SplitRemaining(d time.Duration) (minutes, seconds int64) {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return total / 60, total % 60
}
