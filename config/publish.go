package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	smsotperrors "github.com/byteness/smsotp/errors"
)

// ErrParameterExists is returned when publishing over an existing parameter
// without overwrite.
var ErrParameterExists = errors.New("config parameter already exists")

// ssmWriterAPI defines the SSM write operations used by SSMPublisher.
type ssmWriterAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMPublisher stores a validated authenticator config in SSM Parameter Store
// as a SecureString, the form SSMLoader reads back.
type SSMPublisher struct {
	client ssmWriterAPI
}

// NewSSMPublisher creates a new SSMPublisher using the provided AWS configuration.
func NewSSMPublisher(cfg aws.Config) *SSMPublisher {
	return &SSMPublisher{client: ssm.NewFromConfig(cfg)}
}

// newSSMPublisherWithClient creates an SSMPublisher with a custom client.
func newSSMPublisherWithClient(client ssmWriterAPI) *SSMPublisher {
	return &SSMPublisher{client: client}
}

// PublishInput describes one publish operation.
type PublishInput struct {
	Parameter string
	Content   []byte
	Source    string // Shown in validation errors
	Overwrite bool
	KMSKeyID  string // Default aws/ssm key when empty
}

// PublishResult reports the stored parameter version and any validation warnings.
type PublishResult struct {
	Parameter string            `json:"parameter"`
	Version   int64             `json:"version"`
	Warnings  []ValidationIssue `json:"warnings,omitempty"`
}

// Publish validates the content and writes it to the parameter.
// Content with validation errors is never written.
func (p *SSMPublisher) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if in.Parameter == "" {
		return nil, errors.New("parameter name is required")
	}

	result := Validate(in.Content, in.Source)
	var warnings []ValidationIssue
	var problems []string
	for _, issue := range result.Issues {
		if issue.Severity == SeverityWarning {
			warnings = append(warnings, issue)
			continue
		}
		problems = append(problems, fmt.Sprintf("%s: %s", issue.Location, issue.Message))
	}
	if !result.Valid {
		return nil, smsotperrors.New(smsotperrors.ErrCodeInvalidConfig,
			fmt.Sprintf("config %s is invalid: %s", in.Source, strings.Join(problems, "; ")), nil)
	}

	input := &ssm.PutParameterInput{
		Name:      aws.String(in.Parameter),
		Value:     aws.String(string(in.Content)),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(in.Overwrite),
	}
	if in.KMSKeyID != "" {
		input.KeyId = aws.String(in.KMSKeyID)
	}

	output, err := p.client.PutParameter(ctx, input)
	if err != nil {
		var alreadyExists *types.ParameterAlreadyExists
		if errors.As(err, &alreadyExists) {
			return nil, fmt.Errorf("%s: %w (use --overwrite to replace it)", in.Parameter, ErrParameterExists)
		}
		return nil, smsotperrors.WrapSSMError(err, in.Parameter)
	}

	return &PublishResult{
		Parameter: in.Parameter,
		Version:   output.Version,
		Warnings:  warnings,
	}, nil
}
