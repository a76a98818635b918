package lambda

import (
	"errors"

	"github.com/aws/aws-lambda-go/events"
)

// CallerIdentity represents the IAM identity of the API Gateway caller.
// Extracted from API Gateway v2 HTTP API IAM authorizer context.
type CallerIdentity struct {
	AccountID string // AWS account ID of the caller
	UserARN   string // Full ARN of the calling IAM principal
	UserID    string // Unique ID of the calling principal
}

// ChallengeRequest asks for a code to be sent for one login attempt.
type ChallengeRequest struct {
	// AttemptID identifies the login attempt. Generated when empty.
	AttemptID string `json:"attempt_id"`

	// Username is the login name. It is the phone number when Phone is empty.
	Username string `json:"username"`

	// Phone is the registered phone number, if stored separately.
	Phone string `json:"phone"`
}

// VerifyRequest submits a code for a login attempt.
type VerifyRequest struct {
	AttemptID   string `json:"attempt_id"`
	Code        string `json:"code"`
	Requirement string `json:"requirement"`
}

// OutcomeResponse is the JSON body returned for both operations.
type OutcomeResponse struct {
	AttemptID  string `json:"attempt_id"`
	State      string `json:"state"`
	Outcome    string `json:"outcome"`
	MessageKey string `json:"message_key,omitempty"`
	Detail     string `json:"detail,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Target     string `json:"target,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"` // RFC3339 format
}

// APIError represents an error response for malformed or unauthorized requests.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrMissingIAMContext is returned when IAM authorization context is missing from the request.
var ErrMissingIAMContext = errors.New("IAM authorization context is missing or incomplete")

// ExtractCallerIdentity extracts the IAM caller identity from an API Gateway v2 HTTP request.
func ExtractCallerIdentity(req events.APIGatewayV2HTTPRequest) (*CallerIdentity, error) {
	if req.RequestContext.Authorizer == nil {
		return nil, ErrMissingIAMContext
	}
	iam := req.RequestContext.Authorizer.IAM
	if iam == nil {
		return nil, ErrMissingIAMContext
	}
	if iam.AccountID == "" || iam.UserARN == "" {
		return nil, ErrMissingIAMContext
	}

	return &CallerIdentity{
		AccountID: iam.AccountID,
		UserARN:   iam.UserARN,
		UserID:    iam.UserID,
	}, nil
}
