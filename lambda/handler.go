package lambda

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	smsotperrors "github.com/byteness/smsotp/errors"
	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/session"
	"github.com/byteness/smsotp/validate"
)

// maxBodyBytes bounds the decoded request body.
const maxBodyBytes = 16 << 10

var errEmptyBody = errors.New("request body is empty")

// Handler handles API Gateway v2 HTTP requests for the SMS challenge flow.
type Handler struct {
	// Config contains the flow, the note store and request policy.
	Config *HandlerConfig
}

// NewHandler creates a new handler.
// If cfg is nil, configuration will be loaded from environment on first request.
func NewHandler(cfg ...*HandlerConfig) *Handler {
	if len(cfg) > 0 && cfg[0] != nil {
		return &Handler{Config: cfg[0]}
	}
	return &Handler{}
}

// prepare lazy-loads configuration and enforces IAM authorization.
// A non-nil response is returned as-is.
func (h *Handler) prepare(ctx context.Context, req events.APIGatewayV2HTTPRequest) (*events.APIGatewayV2HTTPResponse, *CallerIdentity) {
	if h.Config == nil {
		cfg, err := LoadConfigFromEnv(ctx)
		if err != nil {
			log.Printf("ERROR: failed to load configuration: %v", err)
			resp, _ := errorResponse(http.StatusInternalServerError, "CONFIG_ERROR",
				"Failed to load configuration: "+err.Error())
			return &resp, nil
		}
		h.Config = cfg
	}

	caller, err := ExtractCallerIdentity(req)
	if err != nil && h.Config.RequireIAM {
		resp, _ := errorResponse(http.StatusForbidden, "IAM_AUTH_REQUIRED",
			fmt.Sprintf("IAM authorization required: %v", err))
		return &resp, nil
	}
	return nil, caller
}

// HandleChallenge issues a challenge: POST /challenge.
// A request without attempt_id starts a new attempt; the generated ID is
// returned and must be sent with the matching /verify call.
func (h *Handler) HandleChallenge(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, caller := h.prepare(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	var body ChallengeRequest
	err := decodeBody(req, &body, func(form url.Values) {
		body.AttemptID = form.Get("attempt_id")
		body.Username = form.Get("username")
		body.Phone = form.Get("phone")
	})
	if err != nil {
		return errorResponse(http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}

	attemptID := strings.TrimSpace(body.AttemptID)
	if attemptID == "" {
		attemptID, err = h.Config.newAttemptID()
		if err != nil {
			return errorResponse(http.StatusInternalServerError, "INTERNAL", "Failed to generate attempt ID")
		}
	}

	store, err := session.NewChallengeStore(h.Config.Notes, attemptID)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "INVALID_ATTEMPT_ID", err.Error())
	}

	out := h.Config.Flow.IssueChallenge(ctx, mfa.UserProfile{
		Username: body.Username,
		Phone:    body.Phone,
	}, store)
	if caller != nil {
		log.Printf("INFO: challenge for attempt %s requested by %s: %s", attemptID, caller.UserARN, out.State)
	}
	return outcomeResponse(attemptID, out)
}

// HandleVerify submits a code: POST /verify.
// The body may be JSON or an HTML form post.
func (h *Handler) HandleVerify(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if resp, _ := h.prepare(ctx, req); resp != nil {
		return *resp, nil
	}

	var body VerifyRequest
	err := decodeBody(req, &body, func(form url.Values) {
		body.AttemptID = form.Get("attempt_id")
		body.Code = form.Get("code")
		body.Requirement = form.Get("requirement")
	})
	if err != nil {
		return errorResponse(http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}

	attemptID := strings.TrimSpace(body.AttemptID)
	if err := validate.ValidateAttemptID(attemptID); err != nil {
		return errorResponse(http.StatusBadRequest, "INVALID_ATTEMPT_ID", err.Error())
	}

	requirement, err := mfa.ParseRequirement(body.Requirement)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "INVALID_REQUIREMENT", err.Error())
	}

	store, err := session.NewChallengeStore(h.Config.Notes, attemptID)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "INVALID_ATTEMPT_ID", err.Error())
	}

	out := h.Config.Flow.SubmitCode(ctx, body.Code, requirement, store)
	return outcomeResponse(attemptID, out)
}

func (c *HandlerConfig) newAttemptID() (string, error) {
	if c.NewAttemptID != nil {
		return c.NewAttemptID()
	}
	return session.NewAttemptID()
}

// decodeBody decodes a JSON body into dst, or hands a form-encoded body to fromForm.
func decodeBody(req events.APIGatewayV2HTTPRequest, dst any, fromForm func(url.Values)) error {
	raw := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("invalid base64 body: %w", err)
		}
		raw = string(decoded)
	}
	if len(raw) > maxBodyBytes {
		return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	if strings.TrimSpace(raw) == "" {
		return errEmptyBody
	}

	mediaType, _, _ := mime.ParseMediaType(headerValue(req.Headers, "Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(raw)
		if err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
		fromForm(form)
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// headerValue looks a header up case-insensitively.
// API Gateway v2 lower-cases header names, direct invocations may not.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// statusForOutcome maps a flow outcome to an HTTP status.
func statusForOutcome(out mfa.Outcome) int {
	switch out.State {
	case mfa.StateChallenged, mfa.StateAccepted, mfa.StateAttempted:
		return http.StatusOK
	case mfa.StateRejected, mfa.StateExpired:
		return http.StatusBadRequest
	}

	switch smsotperrors.GetCode(out.Err) {
	case smsotperrors.ErrCodeNotConfigured:
		return http.StatusPreconditionFailed
	case smsotperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case smsotperrors.ErrCodeSessionStateMissing:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// outcomeResponse renders a flow outcome as the JSON response body.
func outcomeResponse(attemptID string, out mfa.Outcome) (events.APIGatewayV2HTTPResponse, error) {
	resp := OutcomeResponse{
		AttemptID:  attemptID,
		State:      out.State.String(),
		Outcome:    string(out.Kind),
		MessageKey: out.MessageKey,
		Detail:     out.Detail,
		ErrorCode:  smsotperrors.GetCode(out.Err),
		Target:     out.Target,
	}
	if !out.ExpiresAt.IsZero() {
		resp.ExpiresAt = out.ExpiresAt.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "INTERNAL", "Failed to encode response")
	}
	return jsonResponse(statusForOutcome(out), body), nil
}

func jsonResponse(statusCode int, body []byte) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: statusCode,
		Headers: map[string]string{
			"Content-Type":  "application/json; charset=utf-8",
			"Cache-Control": "no-store",
		},
		Body: string(body),
	}
}

// errorResponse creates a JSON error response for requests the flow never saw.
func errorResponse(statusCode int, code, message string) (events.APIGatewayV2HTTPResponse, error) {
	body, _ := json.Marshal(&APIError{
		Code:    code,
		Message: message,
	})
	return jsonResponse(statusCode, body), nil
}

// ErrorResponse creates an error response (exported for main.go).
func ErrorResponse(statusCode int, code, message string) (events.APIGatewayV2HTTPResponse, error) {
	return errorResponse(statusCode, code, message)
}
