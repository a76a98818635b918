package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// MessageKeys maps each error code to the user-facing message key.
// Codes not listed fall back to MsgInternalError.
var MessageKeys = map[string]string{
	ErrCodeNotConfigured:       MsgNotConfigured,
	ErrCodeDeliveryFailed:      MsgSmsNotSent,
	ErrCodeBackendUnavailable:  MsgInternalError,
	ErrCodeRequestMalformed:    MsgInternalError,
	ErrCodeCodeExpired:         MsgCodeExpired,
	ErrCodeCodeInvalid:         MsgCodeInvalid,
	ErrCodeSessionStateMissing: MsgInternalError,
	ErrCodeRateLimited:         MsgTooManyRequests,
}

// Suggestions contains default fix suggestions for each error code.
var Suggestions = map[string]string{
	ErrCodeNotConfigured: "The user has no phone number on the profile. " +
		"Set the phone attribute or disable the SMS authenticator for this user.",
	ErrCodeInvalidConfig: "The authenticator configuration is invalid. " +
		"Run: smsotp config validate <file>",
	ErrCodeDeliveryFailed: "The SMS gateway rejected or did not answer the send request. " +
		"Check gateway.kind, gateway.params and the gateway's status page.",
	ErrCodeBackendUnavailable: "The verification endpoint failed or returned an unexpected body. " +
		"Check verify.url and that the endpoint answers 200 with {\"result\": bool}.",
	ErrCodeRequestMalformed:    "The verification request could not be built. Check verify.url and the stored phone.",
	ErrCodeCodeExpired:         "The code outlived its ttl. The user must request a new code.",
	ErrCodeCodeInvalid:         "The submitted code did not match. The user may retry within the ttl window.",
	ErrCodeSessionStateMissing: "The authentication session lost its challenge notes. Restart the login.",
	ErrCodeRateLimited:         "Too many SMS requests or code submissions. Wait for the window to reset.",
	ErrCodeSSMAccessDenied:     "Ensure your IAM policy includes: ssm:GetParameter on the config parameter.",
	ErrCodeSSMParameterNotFound: "The SSM parameter does not exist. " +
		"Check the parameter name and the region passed with --region.",
	ErrCodeSSMThrottled: "SSM API rate limit exceeded. Wait a moment and retry.",
	ErrCodeDynamoDBAccessDenied: "Ensure your IAM policy includes dynamodb:GetItem, UpdateItem and DeleteItem " +
		"on the session table.",
	ErrCodeDynamoDBNotFound: "The DynamoDB session table does not exist. " +
		"Create it with partition key attempt_id (String) and TTL attribute ttl.",
	ErrCodeDynamoDBThrottled: "DynamoDB throughput exceeded. Wait a moment and retry, or increase table capacity.",
}

// GetSuggestion returns the default suggestion for an error code.
// Returns empty string if no suggestion is defined.
func GetSuggestion(code string) string {
	return Suggestions[code]
}

// GetMessageKey returns the message key for an error code.
func GetMessageKey(code string) string {
	if key, ok := MessageKeys[code]; ok {
		return key
	}
	return MsgInternalError
}

// WrapSSMError examines an SSM error and returns an SmsOtpError with context.
func WrapSSMError(err error, parameter string) SmsOtpError {
	if err == nil {
		return nil
	}

	var code, message string
	switch apiCode := apiErrorCode(err); {
	case apiCode == "ParameterNotFound":
		code = ErrCodeSSMParameterNotFound
		message = fmt.Sprintf("SSM parameter not found: %s", parameter)
	case isAccessDenied(apiCode):
		code = ErrCodeSSMAccessDenied
		message = fmt.Sprintf("Access denied to SSM parameter: %s", parameter)
	case isThrottled(apiCode):
		code = ErrCodeSSMThrottled
		message = fmt.Sprintf("SSM API throttled while accessing: %s", parameter)
	default:
		code = ErrCodeAWSUnknown
		message = fmt.Sprintf("SSM error for parameter %s: %v", parameter, err)
	}

	return WithContext(New(code, message, err), "parameter", parameter)
}

// WrapDynamoDBError examines a DynamoDB error and returns an SmsOtpError with context.
func WrapDynamoDBError(err error, table, operation string) SmsOtpError {
	if err == nil {
		return nil
	}

	var code, message string
	switch apiCode := apiErrorCode(err); {
	case apiCode == "ResourceNotFoundException":
		code = ErrCodeDynamoDBNotFound
		message = fmt.Sprintf("DynamoDB table not found: %s", table)
	case isAccessDenied(apiCode):
		code = ErrCodeDynamoDBAccessDenied
		message = fmt.Sprintf("Access denied to DynamoDB table %s (%s)", table, operation)
	case isThrottled(apiCode):
		code = ErrCodeDynamoDBThrottled
		message = fmt.Sprintf("DynamoDB throttled on table %s (%s)", table, operation)
	default:
		code = ErrCodeAWSUnknown
		message = fmt.Sprintf("DynamoDB %s on %s failed: %v", operation, table, err)
	}

	wrapped := WithContext(New(code, message, err), "table", table)
	return WithContext(wrapped, "operation", operation)
}

// apiErrorCode returns the smithy API error code, or "" for non-API errors.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isAccessDenied(code string) bool {
	return code == "AccessDeniedException" || code == "AccessDenied" || code == "UnauthorizedOperation"
}

func isThrottled(code string) bool {
	return strings.Contains(code, "Throttl") ||
		code == "ProvisionedThroughputExceededException" ||
		code == "RequestLimitExceeded"
}
