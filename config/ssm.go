package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	smsotperrors "github.com/byteness/smsotp/errors"
)

// ErrParameterNotFound is returned when the config parameter does not exist
// in SSM Parameter Store.
var ErrParameterNotFound = errors.New("config parameter not found")

// SSMAPI defines the SSM operations used by SSMLoader.
// This interface enables testing with mock implementations.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMLoader fetches the authenticator config from AWS SSM Parameter Store.
type SSMLoader struct {
	client SSMAPI
}

// NewSSMLoader creates a new SSMLoader using the provided AWS configuration.
func NewSSMLoader(cfg aws.Config) *SSMLoader {
	return &SSMLoader{
		client: ssm.NewFromConfig(cfg),
	}
}

// NewSSMLoaderWithClient creates an SSMLoader with a custom SSM client.
// This is primarily used for testing with mock clients.
func NewSSMLoaderWithClient(client SSMAPI) *SSMLoader {
	return &SSMLoader{
		client: client,
	}
}

// Fetch returns the raw parameter value. The parameter is fetched with
// decryption enabled to support SecureString parameters.
func (l *SSMLoader) Fetch(ctx context.Context, parameterName string) ([]byte, error) {
	output, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(parameterName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: %w", parameterName, ErrParameterNotFound)
		}
		return nil, smsotperrors.WrapSSMError(err, parameterName)
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return nil, fmt.Errorf("%s: parameter has no value", parameterName)
	}

	return []byte(*output.Parameter.Value), nil
}

// Load fetches and parses the config stored in parameterName.
func (l *SSMLoader) Load(ctx context.Context, parameterName string) (*AuthenticatorConfig, error) {
	content, err := l.Fetch(ctx, parameterName)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}
