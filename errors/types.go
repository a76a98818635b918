// Package errors provides structured error types for the SMS one-time-password flow.
// Every error carries a stable code, the message key shown to the user and an
// operator-facing suggestion.
package errors

// SmsOtpError provides additional context for error handling.
// It wraps underlying errors with error codes, message keys and suggestions.
type SmsOtpError interface {
	error
	Unwrap() error              // Original error
	Code() string               // Error code (e.g., "DELIVERY_FAILED")
	MessageKey() string         // Message catalog key for the user-facing page
	Suggestion() string         // Actionable fix suggestion for operators
	Context() map[string]string // Additional context (phone, endpoint, table, etc.)
}

// Flow error codes
const (
	ErrCodeNotConfigured       = "CONFIG_NOT_CONFIGURED"
	ErrCodeInvalidConfig       = "CONFIG_INVALID"
	ErrCodeDeliveryFailed      = "DELIVERY_FAILED"
	ErrCodeBackendUnavailable  = "VERIFICATION_BACKEND_UNAVAILABLE"
	ErrCodeRequestMalformed    = "VERIFICATION_REQUEST_MALFORMED"
	ErrCodeCodeExpired         = "CODE_EXPIRED"
	ErrCodeCodeInvalid         = "CODE_INVALID"
	ErrCodeSessionStateMissing = "SESSION_STATE_MISSING"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL"
)

// AWS error codes
const (
	ErrCodeSSMAccessDenied      = "SSM_ACCESS_DENIED"
	ErrCodeSSMParameterNotFound = "SSM_PARAMETER_NOT_FOUND"
	ErrCodeSSMThrottled         = "SSM_THROTTLED"
	ErrCodeDynamoDBAccessDenied = "DYNAMODB_ACCESS_DENIED"
	ErrCodeDynamoDBNotFound     = "DYNAMODB_TABLE_NOT_FOUND"
	ErrCodeDynamoDBThrottled    = "DYNAMODB_THROTTLED"
	ErrCodeAWSUnknown           = "AWS_ERROR"
)

// Message keys rendered by the login theme.
const (
	MsgNotConfigured   = "smsAuthNotConfigured"
	MsgSmsNotSent      = "smsAuthSmsNotSent"
	MsgInternalError   = "smsAuthInternalError"
	MsgCodeExpired     = "smsAuthCodeExpired"
	MsgCodeInvalid     = "smsAuthCodeInvalid"
	MsgTooManyRequests = "smsAuthTooManyRequests"
)

// smsOtpError implements the SmsOtpError interface.
type smsOtpError struct {
	code       string
	message    string
	messageKey string
	suggestion string
	context    map[string]string
	cause      error
}

// Error implements the error interface.
func (e *smsOtpError) Error() string {
	return e.message
}

// Unwrap returns the underlying cause error.
func (e *smsOtpError) Unwrap() error {
	return e.cause
}

// Code returns the error code.
func (e *smsOtpError) Code() string {
	return e.code
}

// MessageKey returns the message catalog key.
func (e *smsOtpError) MessageKey() string {
	return e.messageKey
}

// Suggestion returns the actionable fix suggestion.
func (e *smsOtpError) Suggestion() string {
	return e.suggestion
}

// Context returns additional context about the error.
func (e *smsOtpError) Context() map[string]string {
	return e.context
}

// New creates a new SmsOtpError with the given code, message and cause.
// The message key and suggestion are looked up from the code.
func New(code, message string, cause error) SmsOtpError {
	return &smsOtpError{
		code:       code,
		message:    message,
		messageKey: GetMessageKey(code),
		suggestion: GetSuggestion(code),
		context:    make(map[string]string),
		cause:      cause,
	}
}

// WithContext adds context to an error and returns a new SmsOtpError.
// The original error is not modified.
func WithContext(err SmsOtpError, key, value string) SmsOtpError {
	existingCtx := err.Context()
	newCtx := make(map[string]string, len(existingCtx)+1)
	for k, v := range existingCtx {
		newCtx[k] = v
	}
	newCtx[key] = value

	return &smsOtpError{
		code:       err.Code(),
		message:    err.Error(),
		messageKey: err.MessageKey(),
		suggestion: err.Suggestion(),
		context:    newCtx,
		cause:      err.Unwrap(),
	}
}

// IsSmsOtpError finds the first SmsOtpError in err's chain.
// If err is nil or carries no SmsOtpError, returns (nil, false).
func IsSmsOtpError(err error) (SmsOtpError, bool) {
	for err != nil {
		if se, ok := err.(SmsOtpError); ok {
			return se, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// GetCode extracts the error code from an error.
// Returns empty string if err is not an SmsOtpError.
func GetCode(err error) string {
	if se, ok := IsSmsOtpError(err); ok {
		return se.Code()
	}
	return ""
}
