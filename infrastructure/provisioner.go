package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	smsotperrors "github.com/byteness/smsotp/errors"
)

// ProvisionStatus represents the result status of a provision operation.
type ProvisionStatus string

const (
	// StatusCreated indicates the table was created successfully.
	StatusCreated ProvisionStatus = "CREATED"
	// StatusExists indicates the table already exists and is active.
	StatusExists ProvisionStatus = "EXISTS"
	// StatusFailed indicates the provision operation failed.
	StatusFailed ProvisionStatus = "FAILED"
)

const statusNotFound = "NOT_FOUND"

// Backoff configuration for waiting on table status.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	waitTimeout    = 5 * time.Minute
)

// dynamoDBProvisionerAPI defines the DynamoDB operations used by TableProvisioner.
type dynamoDBProvisionerAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// TableProvisioner creates tables idempotently and enables their TTL.
type TableProvisioner struct {
	client  dynamoDBProvisionerAPI
	backoff time.Duration
}

// NewTableProvisioner creates a new TableProvisioner using the provided AWS configuration.
func NewTableProvisioner(cfg aws.Config) *TableProvisioner {
	return newTableProvisionerWithClient(dynamodb.NewFromConfig(cfg))
}

// newTableProvisionerWithClient creates a TableProvisioner with a custom client.
func newTableProvisionerWithClient(client dynamoDBProvisionerAPI) *TableProvisioner {
	return &TableProvisioner{client: client, backoff: initialBackoff}
}

// ProvisionResult contains the result of a table provisioning operation.
type ProvisionResult struct {
	TableName string          `json:"table_name"`
	Status    ProvisionStatus `json:"status"`
	ARN       string          `json:"arn,omitempty"`
	Error     error           `json:"-"`
}

// ProvisionPlan describes what would be created for a table.
type ProvisionPlan struct {
	TableName    string `json:"table_name"`
	PartitionKey string `json:"partition_key"`
	TTLAttribute string `json:"ttl_attribute,omitempty"`
	BillingMode  string `json:"billing_mode"`
	Encryption   string `json:"encryption"`
}

// Plan returns what would be created for the given schema without calling AWS.
func Plan(schema TableSchema) (*ProvisionPlan, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	plan := &ProvisionPlan{
		TableName:    schema.TableName,
		PartitionKey: fmt.Sprintf("%s (%s)", schema.PartitionKey.Name, schema.PartitionKey.Type),
		TTLAttribute: schema.TTLAttribute,
		BillingMode:  string(BillingModePayPerRequest),
		Encryption:   "DEFAULT",
	}
	if schema.BillingMode != "" {
		plan.BillingMode = string(schema.BillingMode)
	}
	if schema.KMSKeyARN != "" {
		plan.Encryption = "KMS " + schema.KMSKeyARN
	}
	return plan, nil
}

// Create provisions a DynamoDB table from the given schema.
// An ACTIVE table yields StatusExists; a table still being created is waited for.
// TTL is configured after a new table becomes ACTIVE.
func (p *TableProvisioner) Create(ctx context.Context, schema TableSchema) (*ProvisionResult, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	status, arn, err := p.getTableStatus(ctx, schema.TableName)
	if err != nil {
		return nil, err
	}

	failed := func(err error) (*ProvisionResult, error) {
		return &ProvisionResult{TableName: schema.TableName, Status: StatusFailed, ARN: arn, Error: err}, nil
	}

	switch status {
	case string(types.TableStatusActive):
		return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil

	case string(types.TableStatusCreating), string(types.TableStatusUpdating):
		arn, err = p.waitForActive(ctx, schema.TableName)
		if err != nil {
			return failed(err)
		}
		return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil

	case statusNotFound:
		output, err := p.client.CreateTable(ctx, schemaToCreateTableInput(schema))
		if err != nil {
			// Concurrent creation by another process
			var riu *types.ResourceInUseException
			if errors.As(err, &riu) {
				arn, err = p.waitForActive(ctx, schema.TableName)
				if err != nil {
					return failed(err)
				}
				return &ProvisionResult{TableName: schema.TableName, Status: StatusExists, ARN: arn}, nil
			}
			return failed(smsotperrors.WrapDynamoDBError(err, schema.TableName, "CreateTable"))
		}

		arn, err = p.waitForActive(ctx, schema.TableName)
		if err != nil {
			return failed(err)
		}
		if arn == "" && output.TableDescription != nil {
			arn = aws.ToString(output.TableDescription.TableArn)
		}

		if schema.TTLAttribute != "" {
			if err := p.configureTTL(ctx, schema.TableName, schema.TTLAttribute); err != nil {
				return failed(fmt.Errorf("table created but TTL configuration failed: %w", err))
			}
		}
		return &ProvisionResult{TableName: schema.TableName, Status: StatusCreated, ARN: arn}, nil

	default:
		return failed(fmt.Errorf("table exists with unexpected status: %s", status))
	}
}

// getTableStatus returns the table status and ARN, or NOT_FOUND.
func (p *TableProvisioner) getTableStatus(ctx context.Context, tableName string) (string, string, error) {
	output, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return statusNotFound, "", nil
		}
		return "", "", smsotperrors.WrapDynamoDBError(err, tableName, "DescribeTable")
	}
	if output.Table == nil {
		return statusNotFound, "", nil
	}
	return string(output.Table.TableStatus), aws.ToString(output.Table.TableArn), nil
}

// waitForActive polls until the table reaches ACTIVE status or timeout.
func (p *TableProvisioner) waitForActive(ctx context.Context, tableName string) (string, error) {
	backoff := p.backoff
	deadline := time.Now().Add(waitTimeout)

	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timeout waiting for table %s to become ACTIVE", tableName)
		}

		status, arn, err := p.getTableStatus(ctx, tableName)
		if err != nil {
			return "", err
		}
		switch status {
		case string(types.TableStatusActive):
			return arn, nil
		case statusNotFound, string(types.TableStatusDeleting):
			return "", fmt.Errorf("table %s is %s", tableName, status)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// configureTTL enables TTL on the specified attribute.
func (p *TableProvisioner) configureTTL(ctx context.Context, tableName, ttlAttribute string) error {
	_, err := p.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttribute),
		},
	})
	if err != nil {
		return smsotperrors.WrapDynamoDBError(err, tableName, "UpdateTimeToLive")
	}
	return nil
}

// schemaToCreateTableInput converts a TableSchema to a DynamoDB CreateTableInput.
func schemaToCreateTableInput(schema TableSchema) *dynamodb.CreateTableInput {
	billingMode := types.BillingModePayPerRequest
	if schema.BillingMode != "" {
		billingMode = types.BillingMode(schema.BillingMode)
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(schema.TableName),
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: aws.String(schema.PartitionKey.Name),
			AttributeType: types.ScalarAttributeType(schema.PartitionKey.Type),
		}},
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String(schema.PartitionKey.Name),
			KeyType:       types.KeyTypeHash,
		}},
		BillingMode: billingMode,
	}
	if billingMode == types.BillingModeProvisioned {
		input.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		}
	}

	if schema.KMSKeyARN != "" {
		input.SSESpecification = &types.SSESpecification{
			Enabled:        aws.Bool(true),
			SSEType:        types.SSETypeKms,
			KMSMasterKeyId: aws.String(schema.KMSKeyARN),
		}
	}
	return input
}
