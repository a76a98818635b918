// Package infrastructure provisions the DynamoDB tables the SMS OTP flow
// stores attempt notes and rate limit counters in.
package infrastructure

import (
	"errors"
	"fmt"
)

// KeyType represents a DynamoDB attribute type for keys.
type KeyType string

const (
	// KeyTypeString represents the DynamoDB String type.
	KeyTypeString KeyType = "S"
	// KeyTypeNumber represents the DynamoDB Number type.
	KeyTypeNumber KeyType = "N"
)

// IsValid returns true if the KeyType is a valid key type.
func (kt KeyType) IsValid() bool {
	return kt == KeyTypeString || kt == KeyTypeNumber
}

// BillingMode represents DynamoDB table billing mode.
type BillingMode string

const (
	// BillingModePayPerRequest is on-demand billing mode.
	BillingModePayPerRequest BillingMode = "PAY_PER_REQUEST"
	// BillingModeProvisioned is provisioned capacity billing mode.
	BillingModeProvisioned BillingMode = "PROVISIONED"
)

// IsValid returns true if the BillingMode is a valid DynamoDB billing mode.
func (bm BillingMode) IsValid() bool {
	return bm == BillingModePayPerRequest || bm == BillingModeProvisioned
}

// KeyAttribute represents a key attribute definition.
type KeyAttribute struct {
	Name string
	Type KeyType
}

// Validate checks if the KeyAttribute has valid values.
func (ka KeyAttribute) Validate() error {
	if ka.Name == "" {
		return errors.New("key attribute name is required")
	}
	if !ka.Type.IsValid() {
		return fmt.Errorf("invalid key type %q: must be S or N", ka.Type)
	}
	return nil
}

// TableSchema describes a table with a single partition key.
type TableSchema struct {
	// TableName is the name of the DynamoDB table.
	TableName string
	// PartitionKey is the table's partition key.
	PartitionKey KeyAttribute
	// TTLAttribute is the attribute DynamoDB expires items by.
	// Empty string means no TTL is enabled.
	TTLAttribute string
	// BillingMode defaults to PAY_PER_REQUEST.
	BillingMode BillingMode
	// KMSKeyARN enables SSE with a customer managed key when set.
	KMSKeyARN string
}

// Validate checks if the TableSchema has valid values.
func (ts TableSchema) Validate() error {
	if ts.TableName == "" {
		return errors.New("table name is required")
	}
	if err := ts.PartitionKey.Validate(); err != nil {
		return fmt.Errorf("partition key: %w", err)
	}
	if ts.BillingMode != "" && !ts.BillingMode.IsValid() {
		return fmt.Errorf("invalid billing mode %q", ts.BillingMode)
	}
	return nil
}

// SessionTableSchema returns the schema session.DynamoDBNotes expects:
//   - Partition key: attempt_id (S)
//   - TTL attribute: ttl
func SessionTableSchema(tableName string) TableSchema {
	return TableSchema{
		TableName:    tableName,
		PartitionKey: KeyAttribute{Name: "attempt_id", Type: KeyTypeString},
		TTLAttribute: "ttl",
		BillingMode:  BillingModePayPerRequest,
	}
}

// RateLimitTableSchema returns the schema ratelimit.DynamoDBRateLimiter expects:
//   - Partition key: PK (S)
//   - TTL attribute: TTL
func RateLimitTableSchema(tableName string) TableSchema {
	return TableSchema{
		TableName:    tableName,
		PartitionKey: KeyAttribute{Name: "PK", Type: KeyTypeString},
		TTLAttribute: "TTL",
		BillingMode:  BillingModePayPerRequest,
	}
}
