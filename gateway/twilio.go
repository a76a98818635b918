package gateway

import (
	"context"
	"fmt"
	"time"

	twilio "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig contains configuration for the Twilio Messages API.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string

	// Timeout bounds each send. Zero means DefaultTimeoutSeconds.
	Timeout time.Duration
}

// createMessageFunc sends one message through the Twilio API.
type createMessageFunc func(params *api.CreateMessageParams) (*api.ApiV2010Message, error)

// TwilioGateway sends SMS texts with the Twilio Messages API.
type TwilioGateway struct {
	from    string
	timeout time.Duration
	create  createMessageFunc
}

// NewTwilioGateway creates a TwilioGateway with its own REST client.
// Credentials are passed to the client directly, not through the environment.
func NewTwilioGateway(config TwilioConfig) (*TwilioGateway, error) {
	if config.AccountSID == "" || config.AuthToken == "" {
		return nil, fmt.Errorf("%s gateway: accountSid and authToken are required", KindTwilio)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return newTwilioGatewayWithFunc(config.From, config.Timeout, func(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
		return client.Api.CreateMessage(params)
	})
}

// newTwilioGatewayWithFunc creates a TwilioGateway with a custom send function (for testing).
func newTwilioGatewayWithFunc(from string, timeout time.Duration, create createMessageFunc) (*TwilioGateway, error) {
	if from == "" {
		return nil, fmt.Errorf("%s gateway: parameter %q is required", KindTwilio, "from")
	}
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds * time.Second
	}
	return &TwilioGateway{from: from, timeout: timeout, create: create}, nil
}

func newTwilioFromParams(p Params) (*TwilioGateway, error) {
	timeout, err := p.Timeout()
	if err != nil {
		return nil, fmt.Errorf("%s gateway: %w", KindTwilio, err)
	}
	return NewTwilioGateway(TwilioConfig{
		AccountSID: p.Get("accountSid"),
		AuthToken:  p.Get("authToken"),
		From:       p.Get("from"),
		Timeout:    timeout,
	})
}

// Kind returns KindTwilio.
func (g *TwilioGateway) Kind() string {
	return KindTwilio
}

// Send creates a Twilio message. The REST client is not context aware, so the
// call runs in a goroutine and Send returns early once ctx is done or the
// configured timeout passes.
func (g *TwilioGateway) Send(ctx context.Context, phone, message string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &api.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(g.from)
	params.SetBody(message)

	errCh := make(chan error, 1)
	go func() {
		_, err := g.create(params)
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return newDeliveryError(KindTwilio, phone, "cancelled", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return newDeliveryError(KindTwilio, phone, "create message", err)
		}
		return nil
	}
}
