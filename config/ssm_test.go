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
	"github.com/byteness/smsotp/testutil"
)

func TestSSMLoader_Load(t *testing.T) {
	mock := &testutil.MockSSMClient{
		GetParameterFunc: func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{
				Parameter: &types.Parameter{
					Name:  params.Name,
					Value: aws.String("simulation: true\ngateway:\n  kind: log\n"),
				},
			}, nil
		},
	}
	loader := NewSSMLoaderWithClient(mock)

	cfg, err := loader.Load(context.Background(), "/smsotp/config")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Simulation || cfg.Gateway.Kind != "log" {
		t.Errorf("Load() = %+v", cfg)
	}

	if len(mock.GetParameterCalls) != 1 {
		t.Fatalf("GetParameter called %d times", len(mock.GetParameterCalls))
	}
	input := mock.GetParameterCalls[0]
	if aws.ToString(input.Name) != "/smsotp/config" {
		t.Errorf("Name = %q", aws.ToString(input.Name))
	}
	if !aws.ToBool(input.WithDecryption) {
		t.Error("WithDecryption should be true for SecureString parameters")
	}
}

func TestSSMLoader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		output *ssm.GetParameterOutput
		check  func(t *testing.T, err error)
	}{
		{
			name: "not found",
			err:  &types.ParameterNotFound{Message: aws.String("missing")},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrParameterNotFound) {
					t.Errorf("error = %v, want ErrParameterNotFound", err)
				}
			},
		},
		{
			name: "access denied",
			err:  &smithy.GenericAPIError{Code: "AccessDeniedException"},
			check: func(t *testing.T, err error) {
				var se smsotperrors.SmsOtpError
				if !errors.As(err, &se) || se.Code() != smsotperrors.ErrCodeSSMAccessDenied {
					t.Errorf("error = %v, want SSM access denied", err)
				}
			},
		},
		{
			name:   "no value",
			output: &ssm.GetParameterOutput{Parameter: &types.Parameter{}},
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected error for parameter without value")
				}
			},
		},
		{
			name:   "invalid yaml",
			output: &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("ttl: [")}},
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected parse error")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &testutil.MockSSMClient{
				GetParameterFunc: func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
					return tt.output, tt.err
				},
			}
			_, err := NewSSMLoaderWithClient(mock).Load(context.Background(), "/smsotp/config")
			tt.check(t, err)
		})
	}
}
