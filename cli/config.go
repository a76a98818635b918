package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/byteness/smsotp/config"
)

// ConfigValidateCommandInput contains the input for config validate.
type ConfigValidateCommandInput struct {
	Paths    []string // Local file paths to validate
	SSMPaths []string // SSM parameters to load and validate
	Output   string   // human, json
	Region   string   // AWS region for SSM

	// For testing
	Stdout   io.Writer
	Stderr   io.Writer
	SSMFetch func(ctx context.Context, path string) ([]byte, error) // Override for testing
}

// ConfigTemplateCommandInput contains the input for config template.
type ConfigTemplateCommandInput struct {
	Template   string // Template ID
	OutputFile string // Write to file instead of stdout

	// For testing
	Stdout io.Writer
}

// ConfigPushCommandInput contains the input for config push.
type ConfigPushCommandInput struct {
	Path      string // Local YAML file
	Parameter string // Target SSM parameter
	Overwrite bool
	KMSKeyID  string

	// For testing
	Stdout    io.Writer
	Publisher configPublisher
}

// configPublisher is the subset of config.SSMPublisher used by config push.
type configPublisher interface {
	Publish(ctx context.Context, in config.PublishInput) (*config.PublishResult, error)
}

// configCmd holds the config command reference for subcommand registration.
var configCmd *kingpin.CmdClause

// ConfigureConfigCommand sets up the config command with its subcommands.
func ConfigureConfigCommand(app *kingpin.Application, s *SmsOtp) {
	configCmd = app.Command("config", "Authenticator configuration commands")

	input := ConfigValidateCommandInput{}

	cmd := configCmd.Command("validate", "Validate authenticator configuration files")

	cmd.Arg("paths", "Local files to validate").
		StringsVar(&input.Paths)

	cmd.Flag("path", "Local file to validate (repeatable)").
		Short('p').
		StringsVar(&input.Paths)

	cmd.Flag("ssm", "SSM parameter to load and validate (repeatable)").
		StringsVar(&input.SSMPaths)

	cmd.Flag("output", "Output format: human (default), json").
		Default("human").
		EnumVar(&input.Output, "human", "json")

	cmd.Action(func(c *kingpin.ParseContext) error {
		input.Region = s.Region
		exitCode, err := ConfigValidateCommand(context.Background(), input)
		if err != nil {
			app.FatalIfError(err, "config validate")
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	})

	templateInput := ConfigTemplateCommandInput{}
	ids := make([]string, 0, len(config.AllTemplateIDs()))
	for _, id := range config.AllTemplateIDs() {
		ids = append(ids, id.String())
	}

	tmpl := configCmd.Command("template", "Print a starter authenticator configuration")

	tmpl.Arg("template", fmt.Sprintf("Template: %s", strings.Join(ids, ", "))).
		Required().
		EnumVar(&templateInput.Template, ids...)

	tmpl.Flag("output-file", "Write the template to a file instead of stdout").
		Short('o').
		StringVar(&templateInput.OutputFile)

	tmpl.Action(func(c *kingpin.ParseContext) error {
		err := ConfigTemplateCommand(templateInput)
		app.FatalIfError(err, "config template")
		return nil
	})

	pushInput := ConfigPushCommandInput{}

	push := configCmd.Command("push", "Validate a config file and store it in SSM Parameter Store")

	push.Arg("path", "Local YAML file").
		Required().
		StringVar(&pushInput.Path)

	push.Flag("ssm", "Target SSM parameter").
		Required().
		Envar("SMSOTP_CONFIG_PARAMETER").
		StringVar(&pushInput.Parameter)

	push.Flag("overwrite", "Replace an existing parameter").
		BoolVar(&pushInput.Overwrite)

	push.Flag("kms-key", "KMS key for the SecureString (default aws/ssm)").
		StringVar(&pushInput.KMSKeyID)

	push.Action(func(c *kingpin.ParseContext) error {
		ctx := context.Background()
		if pushInput.Publisher == nil {
			awsCfg, err := s.AWSConfig(ctx)
			app.FatalIfError(err, "config push")
			pushInput.Publisher = config.NewSSMPublisher(awsCfg)
		}
		err := ConfigPushCommand(ctx, pushInput)
		app.FatalIfError(FormatErrorWithSuggestion(err), "config push")
		return nil
	})
}

// ConfigValidateCommand executes the config validate command logic.
// It returns exit code (0=all valid, 1=errors) and any fatal error.
func ConfigValidateCommand(ctx context.Context, input ConfigValidateCommandInput) (int, error) {
	stdout := input.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := input.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	if len(input.Paths) == 0 && len(input.SSMPaths) == 0 {
		err := fmt.Errorf("no paths specified; use positional arguments, --path, or --ssm")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1, err
	}

	var results []config.ValidationResult

	for _, path := range input.Paths {
		// Skip empty paths (from combining args and flags)
		if path == "" {
			continue
		}
		result, _ := config.ValidateFile(path)
		results = append(results, result)
	}

	if len(input.SSMPaths) > 0 {
		ssmFetch := input.SSMFetch
		if ssmFetch == nil {
			var opts []func(*awsconfig.LoadOptions) error
			if input.Region != "" {
				opts = append(opts, awsconfig.WithRegion(input.Region))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				formatErrorForConfig(stderr, fmt.Sprintf("failed to load AWS config: %v", err),
					"check AWS credentials and region configuration")
				return 1, err
			}
			ssmFetch = config.NewSSMLoader(awsCfg).Fetch
		}

		for _, ssmPath := range input.SSMPaths {
			content, err := ssmFetch(ctx, ssmPath)
			if err != nil {
				results = append(results, config.ValidationResult{
					Source: ssmPath,
					Valid:  false,
					Issues: []config.ValidationIssue{{
						Severity:   config.SeverityError,
						Message:    fmt.Sprintf("failed to load SSM parameter: %v", err),
						Suggestion: "verify the SSM path exists and you have ssm:GetParameter permission",
					}},
				})
				continue
			}
			results = append(results, config.Validate(content, ssmPath))
		}
	}

	var summary config.ResultSummary
	summary.Compute(results)

	allResults := config.AllResults{
		Results: results,
		Summary: summary,
	}

	if strings.ToLower(input.Output) == "json" {
		outputJSON(stdout, allResults)
	} else {
		outputHuman(stdout, allResults)
	}

	if summary.Errors > 0 {
		return 1, nil
	}
	return 0, nil
}

// ConfigTemplateCommand writes the starter configuration for input.Template.
func ConfigTemplateCommand(input ConfigTemplateCommandInput) error {
	content, err := config.Generate(config.TemplateID(input.Template))
	if err != nil {
		return err
	}

	if input.OutputFile != "" {
		if err := os.WriteFile(input.OutputFile, content, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", input.OutputFile, err)
		}
		return nil
	}

	stdout := input.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	_, err = stdout.Write(content)
	return err
}

// ConfigPushCommand validates input.Path and publishes it to input.Parameter.
func ConfigPushCommand(ctx context.Context, input ConfigPushCommandInput) error {
	stdout := input.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	content, err := os.ReadFile(input.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input.Path, err)
	}

	result, err := input.Publisher.Publish(ctx, config.PublishInput{
		Parameter: input.Parameter,
		Content:   content,
		Source:    input.Path,
		Overwrite: input.Overwrite,
		KMSKeyID:  input.KMSKeyID,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Stored %s as %s (version %d)\n", input.Path, result.Parameter, result.Version)
	if len(result.Warnings) > 0 {
		fmt.Fprintln(stdout, "  Warnings:")
		writeIssues(stdout, result.Warnings)
	}
	return nil
}

// outputHuman outputs validation results in human-readable format.
func outputHuman(w io.Writer, all config.AllResults) {
	total := len(all.Results)
	if total == 0 {
		fmt.Fprintln(w, "No configurations to validate.")
		return
	}

	fmt.Fprintf(w, "Validating %d configuration%s...\n\n", total, pluralize(total))

	for _, result := range all.Results {
		if result.Valid {
			fmt.Fprintf(w, "# %s\n", result.Source)
			fmt.Fprintln(w, "  Valid")
		} else {
			fmt.Fprintf(w, "X %s\n", result.Source)

			var errors, warnings []config.ValidationIssue
			for _, issue := range result.Issues {
				if issue.Severity == config.SeverityError {
					errors = append(errors, issue)
				} else {
					warnings = append(warnings, issue)
				}
			}

			if len(errors) > 0 {
				fmt.Fprintln(w, "  Errors:")
				writeIssues(w, errors)
			}
			if len(warnings) > 0 {
				fmt.Fprintln(w, "  Warnings:")
				writeIssues(w, warnings)
			}

			if len(errors) > 0 {
				fmt.Fprintln(w, "  Suggestions:")
				seen := make(map[string]bool)
				for _, issue := range errors {
					if issue.Suggestion != "" && !seen[issue.Suggestion] {
						fmt.Fprintf(w, "    - %s\n", issue.Suggestion)
						seen[issue.Suggestion] = true
					}
				}
			}
		}

		// Valid configs can still carry warnings
		if result.Valid && len(result.Issues) > 0 {
			fmt.Fprintln(w, "  Warnings:")
			writeIssues(w, result.Issues)
		}

		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Summary: %d valid, %d invalid (%d errors, %d warnings)\n",
		all.Summary.Valid, all.Summary.Invalid, all.Summary.Errors, all.Summary.Warnings)
}

func writeIssues(w io.Writer, issues []config.ValidationIssue) {
	for _, issue := range issues {
		location := ""
		if issue.Location != "" {
			location = issue.Location + ": "
		}
		fmt.Fprintf(w, "    - %s%s\n", location, issue.Message)
	}
}

// outputJSON outputs validation results in JSON format.
func outputJSON(w io.Writer, all config.AllResults) {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		fmt.Fprintf(w, `{"error": "failed to marshal JSON: %v"}`, err)
		return
	}
	fmt.Fprintln(w, string(data))
}

// formatErrorForConfig formats an error with suggestion for config command.
func formatErrorForConfig(w io.Writer, msg, suggestion string) {
	fmt.Fprintf(w, "Error: %s\n", msg)
	if suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}

// pluralize returns "s" if count != 1.
func pluralize(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
