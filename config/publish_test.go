package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"

	smsotperrors "github.com/byteness/smsotp/errors"
)

// mockSSMWriter implements ssmWriterAPI for testing.
type mockSSMWriter struct {
	putFunc func(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	calls   []*ssm.PutParameterInput
}

func (m *mockSSMWriter) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.calls = append(m.calls, params)
	if m.putFunc != nil {
		return m.putFunc(ctx, params, optFns...)
	}
	return &ssm.PutParameterOutput{Version: 3}, nil
}

func TestSSMPublisher_Publish(t *testing.T) {
	content, err := Generate(TemplateSNS)
	if err != nil {
		t.Fatal(err)
	}
	mock := &mockSSMWriter{}

	result, err := newSSMPublisherWithClient(mock).Publish(context.Background(), PublishInput{
		Parameter: "/smsotp/config",
		Content:   content,
		Source:    "sns.yaml",
		Overwrite: true,
		KMSKeyID:  "alias/smsotp",
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if result.Version != 3 || result.Parameter != "/smsotp/config" {
		t.Errorf("result = %+v", result)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("PutParameter calls = %d, want 1", len(mock.calls))
	}
	call := mock.calls[0]
	if call.Type != types.ParameterTypeSecureString || !aws.ToBool(call.Overwrite) || aws.ToString(call.KeyId) != "alias/smsotp" {
		t.Errorf("PutParameter input = %+v", call)
	}
	if aws.ToString(call.Value) != string(content) {
		t.Error("stored value differs from content")
	}
}

func TestSSMPublisher_PublishWarnings(t *testing.T) {
	mock := &mockSSMWriter{}
	result, err := newSSMPublisherWithClient(mock).Publish(context.Background(), PublishInput{
		Parameter: "/smsotp/config",
		Content:   []byte("simulation: true\ngateway:\n  kind: log\n"),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Location != "simulation" {
		t.Errorf("Warnings = %+v", result.Warnings)
	}
}

func TestSSMPublisher_PublishErrors(t *testing.T) {
	valid, err := Generate(TemplateSimulation)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		input     PublishInput
		putErr    error
		wantCode  string
		wantIs    error
		wantCalls int
	}{
		{
			name:     "invalid config",
			input:    PublishInput{Parameter: "/smsotp/config", Content: []byte("gateway:\n  kind: custom\n  params:\n    url: https://sms.example.com/send\n")},
			wantCode: smsotperrors.ErrCodeInvalidConfig,
		},
		{
			name:      "exists",
			input:     PublishInput{Parameter: "/smsotp/config", Content: valid},
			putErr:    &types.ParameterAlreadyExists{},
			wantIs:    ErrParameterExists,
			wantCalls: 1,
		},
		{
			name:      "access denied",
			input:     PublishInput{Parameter: "/smsotp/config", Content: valid},
			putErr:    &smithy.GenericAPIError{Code: "AccessDeniedException"},
			wantCode:  smsotperrors.ErrCodeSSMAccessDenied,
			wantCalls: 1,
		},
		{
			name:  "no parameter",
			input: PublishInput{Content: valid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSSMWriter{}
			if tt.putErr != nil {
				mock.putFunc = func(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
					return nil, tt.putErr
				}
			}

			_, err := newSSMPublisherWithClient(mock).Publish(context.Background(), tt.input)
			if err == nil {
				t.Fatal("Publish() should fail")
			}
			if tt.wantCode != "" && smsotperrors.GetCode(err) != tt.wantCode {
				t.Errorf("code = %q, want %q (error %v)", smsotperrors.GetCode(err), tt.wantCode, err)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
			if len(mock.calls) != tt.wantCalls {
				t.Errorf("PutParameter calls = %d, want %d", len(mock.calls), tt.wantCalls)
			}
		})
	}
}
