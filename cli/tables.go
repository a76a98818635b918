package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/smsotp/infrastructure"
)

// tableProvisioner is the subset of infrastructure.TableProvisioner used here.
type tableProvisioner interface {
	Create(ctx context.Context, schema infrastructure.TableSchema) (*infrastructure.ProvisionResult, error)
}

// TablesCreateCommandInput contains the input for tables create.
type TablesCreateCommandInput struct {
	SessionTable   string
	RateLimitTable string
	KMSKeyARN      string
	Plan           bool   // Print the schemas without calling AWS
	Output         string // human, json

	// For testing
	Stdout      io.Writer
	Provisioner tableProvisioner
}

// ConfigureTablesCommand sets up the tables command with its subcommands.
func ConfigureTablesCommand(app *kingpin.Application, s *SmsOtp) {
	tablesCmd := app.Command("tables", "DynamoDB tables for attempt state and rate limits")

	input := TablesCreateCommandInput{}

	cmd := tablesCmd.Command("create", "Create the DynamoDB tables (idempotent)")

	cmd.Flag("session-table", "Attempt state table name").
		Envar("SMSOTP_SESSION_TABLE").
		StringVar(&input.SessionTable)

	cmd.Flag("rate-limit-table", "Rate limit table name").
		Envar("SMSOTP_RATE_LIMIT_TABLE").
		StringVar(&input.RateLimitTable)

	cmd.Flag("kms-key", "KMS key ARN for server-side encryption").
		StringVar(&input.KMSKeyARN)

	cmd.Flag("plan", "Show what would be created without calling AWS").
		BoolVar(&input.Plan)

	cmd.Flag("output", "Output format: human (default), json").
		Default("human").
		EnumVar(&input.Output, "human", "json")

	cmd.Action(func(c *kingpin.ParseContext) error {
		exitCode, err := TablesCreateCommand(context.Background(), input, s)
		if err != nil {
			app.FatalIfError(FormatErrorWithSuggestion(err), "tables create")
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	})
}

// TablesCreateCommand creates or plans the configured tables.
// It returns exit code 0 when every table exists afterwards and 1 otherwise.
func TablesCreateCommand(ctx context.Context, input TablesCreateCommandInput, s *SmsOtp) (int, error) {
	stdout := input.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var schemas []infrastructure.TableSchema
	if input.SessionTable != "" {
		schemas = append(schemas, infrastructure.SessionTableSchema(input.SessionTable))
	}
	if input.RateLimitTable != "" {
		schemas = append(schemas, infrastructure.RateLimitTableSchema(input.RateLimitTable))
	}
	if len(schemas) == 0 {
		return 1, errors.New("no tables specified; use --session-table and/or --rate-limit-table")
	}
	for i := range schemas {
		schemas[i].KMSKeyARN = input.KMSKeyARN
	}

	if input.Plan {
		plans := make([]*infrastructure.ProvisionPlan, 0, len(schemas))
		for _, schema := range schemas {
			plan, err := infrastructure.Plan(schema)
			if err != nil {
				return 1, err
			}
			plans = append(plans, plan)
		}
		if input.Output == "json" {
			return 0, writeJSON(stdout, plans)
		}
		for _, plan := range plans {
			fmt.Fprintf(stdout, "%s\n  partition key: %s\n  ttl attribute: %s\n  billing: %s\n  encryption: %s\n",
				plan.TableName, plan.PartitionKey, plan.TTLAttribute, plan.BillingMode, plan.Encryption)
		}
		return 0, nil
	}

	provisioner := input.Provisioner
	if provisioner == nil {
		awsCfg, err := s.AWSConfig(ctx)
		if err != nil {
			return 1, err
		}
		provisioner = infrastructure.NewTableProvisioner(awsCfg)
	}

	exitCode := 0
	results := make([]*infrastructure.ProvisionResult, 0, len(schemas))
	for _, schema := range schemas {
		result, err := provisioner.Create(ctx, schema)
		if err != nil {
			return 1, err
		}
		if result.Status == infrastructure.StatusFailed {
			exitCode = 1
		}
		results = append(results, result)
	}

	if input.Output == "json" {
		return exitCode, writeJSON(stdout, results)
	}
	for _, result := range results {
		fmt.Fprintf(stdout, "%-8s %s", result.Status, result.TableName)
		if result.ARN != "" {
			fmt.Fprintf(stdout, " (%s)", result.ARN)
		}
		fmt.Fprintln(stdout)
		if result.Error != nil {
			FormatErrorWithSuggestionTo(stdout, result.Error)
		}
	}
	return exitCode, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
