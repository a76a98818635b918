package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	api "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestTwilioGateway_Send(t *testing.T) {
	var captured *api.CreateMessageParams
	g, err := newTwilioGatewayWithFunc("+15550001111", 0, func(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
		captured = params
		return &api.ApiV2010Message{}, nil
	})
	if err != nil {
		t.Fatalf("newTwilioGatewayWithFunc() error = %v", err)
	}

	if err := g.Send(context.Background(), "+15551234567", "Your SMS code is 482913"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if captured == nil {
		t.Fatal("CreateMessage not called")
	}
	if *captured.To != "+15551234567" || *captured.From != "+15550001111" || *captured.Body != "Your SMS code is 482913" {
		t.Errorf("params = to %q from %q body %q", *captured.To, *captured.From, *captured.Body)
	}
}

func TestTwilioGateway_Error(t *testing.T) {
	g, err := newTwilioGatewayWithFunc("+15550001111", 0, func(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
		return nil, errors.New("Status: 400 - ApiError 21211: Invalid 'To' Phone Number")
	})
	if err != nil {
		t.Fatalf("newTwilioGatewayWithFunc() error = %v", err)
	}

	err = g.Send(context.Background(), "+15551234567", "msg")
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("Send() error = %v, want *DeliveryError", err)
	}
	if de.Kind != KindTwilio || de.Reason != "create message" {
		t.Errorf("DeliveryError = %+v", de)
	}
}

func TestTwilioGateway_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	g, err := newTwilioGatewayWithFunc("+15550001111", 0, func(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
		<-release
		return &api.ApiV2010Message{}, nil
	})
	if err != nil {
		t.Fatalf("newTwilioGatewayWithFunc() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = g.Send(ctx, "+15551234567", "msg")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want deadline exceeded", err)
	}
}

func TestTwilioGateway_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	g, err := newTwilioGatewayWithFunc("+15550001111", 20*time.Millisecond, func(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
		<-release
		return &api.ApiV2010Message{}, nil
	})
	if err != nil {
		t.Fatalf("newTwilioGatewayWithFunc() error = %v", err)
	}

	start := time.Now()
	err = g.Send(context.Background(), "+15551234567", "msg")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Send() returned after %v", elapsed)
	}
}

func TestNewTwilioGateway_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config TwilioConfig
	}{
		{"no credentials", TwilioConfig{From: "+15550001111"}},
		{"no token", TwilioConfig{AccountSID: "AC123", From: "+15550001111"}},
		{"no from", TwilioConfig{AccountSID: "AC123", AuthToken: "secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTwilioGateway(tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}

	g, err := NewTwilioGateway(TwilioConfig{AccountSID: "AC123", AuthToken: "secret", From: "+15550001111"})
	if err != nil {
		t.Fatalf("NewTwilioGateway() error = %v", err)
	}
	if g.Kind() != KindTwilio {
		t.Errorf("Kind() = %q", g.Kind())
	}
}
