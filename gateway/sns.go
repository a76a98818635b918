package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
)

// SNS SMS message attribute names.
const (
	snsAttrSMSType  = "AWS.SNS.SMS.SMSType"
	snsAttrSenderID = "AWS.SNS.SMS.SenderID"
)

// SMS types accepted by SNS.
const (
	SMSTypeTransactional = "Transactional"
	SMSTypePromotional   = "Promotional"
)

// snsAPI defines the SNS operations used by SNSGateway.
// This interface enables testing with mock implementations.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSConfig contains configuration for SNS direct SMS publishing.
type SNSConfig struct {
	// SenderID is the alphanumeric sender shown on supporting carriers. Optional.
	SenderID string

	// SMSType is Transactional (default) or Promotional.
	SMSType string

	// Timeout bounds each Publish call. Zero means DefaultTimeoutSeconds.
	Timeout time.Duration
}

// SNSGateway publishes SMS texts directly to phone numbers with AWS SNS.
type SNSGateway struct {
	client snsAPI
	config SNSConfig
}

// NewSNSGateway creates an SNSGateway using the provided AWS configuration.
func NewSNSGateway(cfg aws.Config, config SNSConfig) (*SNSGateway, error) {
	return newSNSGatewayWithClient(sns.NewFromConfig(cfg), config)
}

// newSNSGatewayWithClient creates an SNSGateway with a custom client.
// This is primarily used for testing with mock clients.
func newSNSGatewayWithClient(client snsAPI, config SNSConfig) (*SNSGateway, error) {
	switch config.SMSType {
	case "":
		config.SMSType = SMSTypeTransactional
	case SMSTypeTransactional, SMSTypePromotional:
	default:
		return nil, fmt.Errorf("%s gateway: smsType must be %s or %s, got %q", KindSNS, SMSTypeTransactional, SMSTypePromotional, config.SMSType)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeoutSeconds * time.Second
	}
	return &SNSGateway{
		client: client,
		config: config,
	}, nil
}

// Kind returns KindSNS.
func (g *SNSGateway) Kind() string {
	return KindSNS
}

// Send publishes message to phone within the configured timeout.
func (g *SNSGateway) Send(ctx context.Context, phone, message string) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	attrs := map[string]types.MessageAttributeValue{
		snsAttrSMSType: {
			DataType:    aws.String("String"),
			StringValue: aws.String(g.config.SMSType),
		},
	}
	if g.config.SenderID != "" {
		attrs[snsAttrSenderID] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(g.config.SenderID),
		}
	}

	_, err := g.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		reason := "sns publish"
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			reason = "sns publish: " + apiErr.ErrorCode()
		}
		return newDeliveryError(KindSNS, phone, reason, err)
	}

	return nil
}
