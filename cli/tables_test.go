package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/byteness/smsotp/infrastructure"
)

type mockTableProvisioner struct {
	schemas []infrastructure.TableSchema
	status  map[string]infrastructure.ProvisionStatus
}

func (m *mockTableProvisioner) Create(_ context.Context, schema infrastructure.TableSchema) (*infrastructure.ProvisionResult, error) {
	m.schemas = append(m.schemas, schema)
	result := &infrastructure.ProvisionResult{TableName: schema.TableName, Status: infrastructure.StatusCreated}
	if status, ok := m.status[schema.TableName]; ok {
		result.Status = status
	}
	if result.Status == infrastructure.StatusFailed {
		result.Error = errors.New("access denied")
	}
	return result, nil
}

func TestTablesCreateCommand(t *testing.T) {
	mock := &mockTableProvisioner{}

	var stdout bytes.Buffer
	exitCode, err := TablesCreateCommand(context.Background(), TablesCreateCommandInput{
		SessionTable:   "smsotp-attempts",
		RateLimitTable: "smsotp-limits",
		KMSKeyARN:      "arn:aws:kms:us-east-1:123456789012:key/abc",
		Output:         "json",
		Stdout:         &stdout,
		Provisioner:    mock,
	}, &SmsOtp{})
	if err != nil || exitCode != 0 {
		t.Fatalf("TablesCreateCommand() = %d, %v", exitCode, err)
	}

	if len(mock.schemas) != 2 {
		t.Fatalf("Create calls = %d, want 2", len(mock.schemas))
	}
	if mock.schemas[0].PartitionKey.Name != "attempt_id" || mock.schemas[1].PartitionKey.Name != "PK" {
		t.Errorf("schemas = %+v", mock.schemas)
	}
	for _, schema := range mock.schemas {
		if schema.KMSKeyARN == "" {
			t.Errorf("%s: KMS key not passed", schema.TableName)
		}
	}

	var results []infrastructure.ProvisionResult
	if err := json.Unmarshal(stdout.Bytes(), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if len(results) != 2 || results[0].Status != infrastructure.StatusCreated {
		t.Errorf("results = %+v", results)
	}
}

func TestTablesCreateCommand_Failure(t *testing.T) {
	mock := &mockTableProvisioner{status: map[string]infrastructure.ProvisionStatus{
		"smsotp-attempts": infrastructure.StatusFailed,
	}}

	var stdout bytes.Buffer
	exitCode, err := TablesCreateCommand(context.Background(), TablesCreateCommandInput{
		SessionTable: "smsotp-attempts",
		Stdout:       &stdout,
		Provisioner:  mock,
	}, &SmsOtp{})
	if err != nil {
		t.Fatalf("TablesCreateCommand() error = %v", err)
	}
	if exitCode != 1 {
		t.Errorf("exitCode = %d, want 1", exitCode)
	}
	if !strings.Contains(stdout.String(), "FAILED   smsotp-attempts") || !strings.Contains(stdout.String(), "Error: access denied") {
		t.Errorf("stdout = %s", stdout.String())
	}
}

func TestTablesCreateCommand_Plan(t *testing.T) {
	mock := &mockTableProvisioner{}

	var stdout bytes.Buffer
	exitCode, err := TablesCreateCommand(context.Background(), TablesCreateCommandInput{
		SessionTable: "smsotp-attempts",
		Plan:         true,
		Stdout:       &stdout,
		Provisioner:  mock,
	}, &SmsOtp{})
	if err != nil || exitCode != 0 {
		t.Fatalf("TablesCreateCommand() = %d, %v", exitCode, err)
	}
	if len(mock.schemas) != 0 {
		t.Error("plan should not create tables")
	}
	if !strings.Contains(stdout.String(), "partition key: attempt_id (S)") {
		t.Errorf("stdout = %s", stdout.String())
	}
}

func TestTablesCreateCommand_NoTables(t *testing.T) {
	if _, err := TablesCreateCommand(context.Background(), TablesCreateCommandInput{Stdout: &bytes.Buffer{}}, &SmsOtp{}); err == nil {
		t.Error("expected error when no table is named")
	}
}
