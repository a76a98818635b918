package mfa

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	smsotperrors "github.com/byteness/smsotp/errors"
	"github.com/byteness/smsotp/logging"
	"github.com/byteness/smsotp/ratelimit"
	"github.com/byteness/smsotp/validate"
)

// maxDetailLength bounds the diagnostic detail carried in outcomes and log entries.
const maxDetailLength = 256

// ErrNoSender is returned by NewFlow when no delivery backend is supplied.
var ErrNoSender = errors.New("sender cannot be nil")

// Sender delivers an SMS text to a phone number.
// gateway.Gateway satisfies this interface.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// Flow drives the challenge state machine for one authenticator configuration.
// A Flow holds no per-attempt state and is safe for concurrent use; each call
// operates on the StateStore it is handed.
type Flow struct {
	config         Config
	sender         Sender
	verifier       Verifier
	generator      *CodeGenerator
	logger         logging.Logger
	issueLimiter   ratelimit.RateLimiter
	attemptLimiter ratelimit.RateLimiter
	now            func() time.Time
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) {
		f.now = now
	}
}

// WithLogger sets the audit logger. Defaults to a NopLogger.
func WithLogger(logger logging.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithGenerator sets the code generator. Defaults to a crypto/rand generator.
func WithGenerator(g *CodeGenerator) FlowOption {
	return func(f *Flow) {
		f.generator = g
	}
}

// WithIssueLimiter bounds challenge issuance per phone number.
func WithIssueLimiter(l ratelimit.RateLimiter) FlowOption {
	return func(f *Flow) {
		f.issueLimiter = l
	}
}

// WithAttemptLimiter bounds code submissions per challenge.
// Without it, a positive Config.MaxAttempts gets an in-memory limiter.
func WithAttemptLimiter(l ratelimit.RateLimiter) FlowOption {
	return func(f *Flow) {
		f.attemptLimiter = l
	}
}

// NewFlow creates a Flow. A nil verifier selects NewVerifier(cfg, nil).
func NewFlow(cfg Config, sender Sender, verifier Verifier, opts ...FlowOption) (*Flow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, smsotperrors.New(smsotperrors.ErrCodeInvalidConfig, err.Error(), err)
	}
	if sender == nil {
		return nil, ErrNoSender
	}
	if verifier == nil {
		verifier = NewVerifier(cfg, nil)
	}

	f := &Flow{
		config:   cfg,
		sender:   sender,
		verifier: verifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.generator == nil {
		f.generator = NewCodeGenerator(nil)
	}
	if f.logger == nil {
		f.logger = logging.NewNopLogger()
	}
	if f.attemptLimiter == nil && cfg.MaxAttempts > 0 {
		limiter, err := ratelimit.NewMemoryRateLimiterWithClock(ratelimit.Config{
			RequestsPerWindow: cfg.MaxAttempts,
			Window:            cfg.TTL(),
		}, f.now)
		if err != nil {
			return nil, fmt.Errorf("create attempt limiter: %w", err)
		}
		f.attemptLimiter = limiter
	}

	return f, nil
}

// Config returns the authenticator configuration.
func (f *Flow) Config() Config {
	return f.config
}

// ConfiguredFor reports whether a challenge can be issued to the user.
func (f *Flow) ConfiguredFor(user UserProfile) bool {
	_, err := f.resolvePhone(user)
	return err == nil
}

func (f *Flow) resolvePhone(user UserProfile) (string, error) {
	phone := user.ResolvePhone()
	if phone == "" {
		return "", validate.ErrPhoneEmpty
	}
	if f.config.StrictPhone {
		if err := validate.ValidatePhone(phone); err != nil {
			return "", err
		}
	}
	return phone, nil
}

// IssueChallenge moves the attempt from Start to Challenged.
//
// The challenge state is replaced wholesale: a new deadline, and in simulation
// mode a new code. On success the caller presents the code-entry form.
func (f *Flow) IssueChallenge(ctx context.Context, user UserProfile, store StateStore) Outcome {
	now := f.now()
	entry := logging.NewChallengeLogEntry(now, "", "")
	entry.Simulation = f.config.Simulation
	entry.GatewayKind = f.config.GatewayKind

	phone, err := f.resolvePhone(user)
	if err != nil {
		// Never deliver to an unresolved target.
		out := f.failure(smsotperrors.ErrCodeNotConfigured, "no usable phone number on the user profile", err)
		f.logChallenge(entry, out)
		return out
	}
	target := validate.MaskPhone(phone)
	entry.Target = target

	if f.issueLimiter != nil {
		if out, limited := f.checkLimit(ctx, f.issueLimiter, ratelimit.IssueKey(phone)); limited {
			f.logChallenge(entry, out)
			return out
		}
	}

	state := &ChallengeState{
		Phone:     phone,
		ExpiresAt: now.Add(f.config.TTL()).UnixMilli(),
	}

	text := f.config.FormatSMS(f.config.Mask())
	if f.config.generatesCode() {
		code, err := f.generator.Generate(f.config.CodeLength)
		if err != nil {
			out := f.failure(smsotperrors.ErrCodeInternal, "generate code", err)
			f.logChallenge(entry, out)
			return out
		}
		if f.config.Simulation {
			state.SimulationCode = code
		} else {
			state.CodeHash = HashCode(code)
			text = f.config.FormatSMS(code)
		}
	}

	if err := store.Save(ctx, state); err != nil {
		out := f.failure(smsotperrors.ErrCodeInternal, "save challenge state", err)
		f.logChallenge(entry, out)
		return out
	}

	if err := f.send(ctx, phone, text); err != nil {
		// A challenge that never reached the user must not be verifiable.
		if clearErr := store.Clear(ctx); clearErr != nil {
			log.Printf("smsotp: clear state after failed delivery: %v", clearErr)
		}
		out := f.failure(smsotperrors.ErrCodeDeliveryFailed, "SMS delivery failed", err)
		f.logChallenge(entry, out)
		return out
	}

	out := Outcome{
		State:     StateChallenged,
		Kind:      OutcomePresentForm,
		Target:    target,
		ExpiresAt: state.Deadline(),
	}
	entry.ExpiresAt = logging.FormatTime(out.ExpiresAt)
	f.logChallenge(entry, out)
	return out
}

// SubmitCode verifies a submitted code against the attempt's challenge.
//
// The verdict is computed first; expiry is only checked for a valid code.
// An invalid code leaves the challenge untouched so the user may retry.
func (f *Flow) SubmitCode(ctx context.Context, code string, requirement Requirement, store StateStore) Outcome {
	entry := logging.NewVerificationLogEntry(f.now(), "", "")
	entry.Simulation = f.config.Simulation

	if requirement == "" {
		requirement = RequirementRequired
	}
	entry.Requirement = requirement.String()
	if !requirement.IsValid() {
		out := f.failure(smsotperrors.ErrCodeInvalidConfig, fmt.Sprintf("unknown requirement %q", requirement), nil)
		f.logVerification(entry, out)
		return out
	}

	state, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrStateNotFound):
		out := f.failure(smsotperrors.ErrCodeSessionStateMissing, "no challenge recorded for this attempt", err)
		f.logVerification(entry, out)
		return out
	case err != nil:
		out := f.failure(smsotperrors.ErrCodeInternal, "load challenge state", err)
		f.logVerification(entry, out)
		return out
	case code == "":
		out := f.failure(smsotperrors.ErrCodeSessionStateMissing, "no code submitted", validate.ErrCodeEmpty)
		f.logVerification(entry, out)
		return out
	}
	entry.Target = validate.MaskPhone(state.Phone)

	if f.attemptLimiter != nil {
		if out, limited := f.checkLimit(ctx, f.attemptLimiter, ratelimit.AttemptKey(state.Phone, state.ExpiresAt)); limited {
			f.clear(ctx, store)
			f.logVerification(entry, out)
			return out
		}
	}

	verdict := VerdictInvalid
	var verifyErr error
	// Codes that cannot match are rejected without a backend call.
	if validate.ValidateCode(code) == nil {
		verdict, verifyErr = f.verifier.Verify(ctx, state.Phone, code, state)
	}
	entry.Verdict = verdict.String()

	var out Outcome
	switch verdict {
	case VerdictBackendUnavailable:
		log.Printf("smsotp: verification backend unavailable: %v", verifyErr)
		out = f.failure(smsotperrors.ErrCodeBackendUnavailable, "verification backend unavailable", verifyErr)
	case VerdictRequestMalformed:
		log.Printf("smsotp: verification request malformed: %v", verifyErr)
		out = f.failure(smsotperrors.ErrCodeRequestMalformed, "verification request malformed", verifyErr)
	case VerdictValid:
		f.clear(ctx, store)
		if state.IsExpired(f.now()) {
			err := smsotperrors.New(smsotperrors.ErrCodeCodeExpired, "code expired", nil)
			out = Outcome{
				State:      StateExpired,
				Kind:       OutcomePresentError,
				MessageKey: err.MessageKey(),
				Err:        err,
				ExpiresAt:  state.Deadline(),
			}
		} else {
			out = Outcome{State: StateAccepted, Kind: OutcomeSucceed}
		}
	default:
		if requirement == RequirementRequired {
			out = Outcome{
				State:      StateRejected,
				Kind:       OutcomePresentForm,
				MessageKey: smsotperrors.MsgCodeInvalid,
				ExpiresAt:  state.Deadline(),
			}
		} else {
			out = Outcome{State: StateAttempted, Kind: OutcomeYield}
		}
	}

	f.logVerification(entry, out)
	return out
}

// send delivers text within the configured timeout.
func (f *Flow) send(ctx context.Context, phone, text string) error {
	ctx, cancel := context.WithTimeout(ctx, f.config.EffectiveTimeout())
	defer cancel()
	return f.sender.Send(ctx, phone, text)
}

// checkLimit consults a limiter. Limiter errors fail open.
func (f *Flow) checkLimit(ctx context.Context, limiter ratelimit.RateLimiter, key string) (Outcome, bool) {
	allowed, retryAfter, err := limiter.Allow(ctx, key)
	if err != nil {
		log.Printf("smsotp: rate limiter error (failing open): %v", err)
		return Outcome{}, false
	}
	if allowed {
		return Outcome{}, false
	}
	detail := "too many requests"
	if retryAfter > 0 {
		detail = fmt.Sprintf("retry after %ds", int(retryAfter.Round(time.Second)/time.Second))
	}
	return f.failure(smsotperrors.ErrCodeRateLimited, detail, nil), true
}

// clear removes the challenge state once the attempt concludes.
func (f *Flow) clear(ctx context.Context, store StateStore) {
	if err := store.Clear(ctx); err != nil {
		log.Printf("smsotp: clear challenge state: %v", err)
	}
}

// failure builds an Error outcome from a structured error code.
func (f *Flow) failure(code, message string, cause error) Outcome {
	err := smsotperrors.New(code, message, cause)
	detail := message
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", message, cause)
	}
	return Outcome{
		State:      StateError,
		Kind:       OutcomePresentError,
		MessageKey: err.MessageKey(),
		Detail:     validate.SanitizeForLog(detail, maxDetailLength),
		Err:        err,
	}
}

func (f *Flow) logChallenge(entry logging.ChallengeLogEntry, out Outcome) {
	entry.State = out.State.String()
	entry.ErrorCode = smsotperrors.GetCode(out.Err)
	entry.Detail = out.Detail
	f.logger.LogChallenge(entry)
}

func (f *Flow) logVerification(entry logging.VerificationLogEntry, out Outcome) {
	entry.State = out.State.String()
	entry.ErrorCode = smsotperrors.GetCode(out.Err)
	entry.Detail = out.Detail
	f.logger.LogVerification(entry)
}
