// Package gateway delivers SMS texts to phone numbers through pluggable
// backends selected by a configuration tag.
//
// Supported kinds:
//   - custom: form-encoded POST of the phone number to an HTTP send endpoint
//   - sns: AWS SNS direct publish to the phone number
//   - twilio: Twilio Messages API
//   - log: writes the message to a log stream (development and simulation)
//
// Every Send performs at most one outbound request and never retries.
// Failures are returned as *DeliveryError.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/byteness/smsotp/validate"
)

// Gateway kinds.
const (
	KindCustom = "custom"
	KindSNS    = "sns"
	KindTwilio = "twilio"
	KindLog    = "log"
)

// DefaultTimeoutSeconds bounds every send when timeoutSeconds is unset.
const DefaultTimeoutSeconds = 10

// Secret reference prefixes recognised in gateway params.
const (
	SecretsManagerPrefix = "secretsmanager:"
	KeyringPrefix        = "keyring:"
)

// ErrUnknownKind is returned by New for an unsupported gateway kind.
var ErrUnknownKind = errors.New("unknown gateway kind")

// Gateway delivers a message to a phone number.
type Gateway interface {
	// Send delivers message to phone. Failures are *DeliveryError.
	Send(ctx context.Context, phone, message string) error

	// Kind returns the gateway kind.
	Kind() string
}

// DeliveryError reports a failed send.
type DeliveryError struct {
	// Kind is the gateway kind that failed.
	Kind string

	// Target is the masked phone number.
	Target string

	// Reason describes the failure.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s gateway: delivery to %s failed: %s", e.Kind, e.Target, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

func newDeliveryError(kind, phone, reason string, cause error) *DeliveryError {
	return &DeliveryError{
		Kind:   kind,
		Target: validate.MaskPhone(phone),
		Reason: reason,
		Cause:  cause,
	}
}

// SecretResolver resolves a secret reference such as
// "secretsmanager:smsotp/twilio-token" to its value.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Options carries the dependencies gateways may need.
type Options struct {
	// AWSConfig is required for the sns kind.
	AWSConfig *aws.Config

	// HTTPClient overrides the client built from timeoutSeconds.
	HTTPClient *http.Client

	// Secrets resolves secret references in params. Nil rejects references.
	Secrets SecretResolver

	// LogOutput receives log gateway lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// New builds the gateway for kind from params. An empty kind selects custom.
// Param values carrying a secret prefix are resolved through opts.Secrets.
func New(ctx context.Context, kind string, params map[string]string, opts Options) (Gateway, error) {
	resolved, err := resolveParams(ctx, params, opts.Secrets)
	if err != nil {
		return nil, err
	}
	p := Params(resolved)

	switch strings.ToLower(kind) {
	case "", KindCustom:
		return newCustomFromParams(p, opts)
	case KindSNS:
		if opts.AWSConfig == nil {
			return nil, errors.New("sns gateway requires AWS configuration")
		}
		timeout, err := p.Timeout()
		if err != nil {
			return nil, fmt.Errorf("%s gateway: %w", KindSNS, err)
		}
		return NewSNSGateway(*opts.AWSConfig, SNSConfig{
			SenderID: p.Get("senderId"),
			SMSType:  p.Get("smsType"),
			Timeout:  timeout,
		})
	case KindTwilio:
		return newTwilioFromParams(p)
	case KindLog:
		out := opts.LogOutput
		if out == nil {
			out = os.Stderr
		}
		return NewLogGateway(out), nil
	default:
		return nil, fmt.Errorf("%w %q: use custom, sns, twilio or log", ErrUnknownKind, kind)
	}
}

// Params is a gateway parameter map with typed accessors.
type Params map[string]string

// Get returns the trimmed value for key.
func (p Params) Get(key string) string {
	return strings.TrimSpace(p[key])
}

// Require returns the value for key or an error naming it.
func (p Params) Require(kind, key string) (string, error) {
	v := p.Get(key)
	if v == "" {
		return "", fmt.Errorf("%s gateway: parameter %q is required", kind, key)
	}
	return v, nil
}

// Timeout returns timeoutSeconds as a duration, defaulting to DefaultTimeoutSeconds.
func (p Params) Timeout() (time.Duration, error) {
	raw := p.Get("timeoutSeconds")
	if raw == "" {
		return DefaultTimeoutSeconds * time.Second, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("timeoutSeconds must be a positive integer, got %q", raw)
	}
	return time.Duration(n) * time.Second, nil
}

// IsSecretRef reports whether v is a secret reference.
func IsSecretRef(v string) bool {
	return strings.HasPrefix(v, SecretsManagerPrefix) || strings.HasPrefix(v, KeyringPrefix)
}

// resolveParams returns a copy of params with secret references resolved.
func resolveParams(ctx context.Context, params map[string]string, secrets SecretResolver) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if !IsSecretRef(v) {
			out[k] = v
			continue
		}
		if secrets == nil {
			return nil, fmt.Errorf("parameter %q references a secret but no secret resolver is configured", k)
		}
		value, err := secrets.Resolve(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("resolve parameter %q: %w", k, err)
		}
		out[k] = value
	}
	return out, nil
}
