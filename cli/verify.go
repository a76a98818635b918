package cli

import (
	"context"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/session"
	"github.com/byteness/smsotp/validate"
)

// VerifyCommandInput contains the input for verify.
type VerifyCommandInput struct {
	FlowInput

	AttemptID   string
	Code        string
	Requirement string // required, alternative
}

// ConfigureVerifyCommand sets up the verify command.
func ConfigureVerifyCommand(app *kingpin.Application, s *SmsOtp) {
	input := VerifyCommandInput{}

	cmd := app.Command("verify", "Check a code against an issued challenge")

	cmd.Flag("attempt-id", "Attempt ID printed by challenge").
		Required().
		StringVar(&input.AttemptID)

	cmd.Flag("code", "Code the user received").
		Required().
		StringVar(&input.Code)

	cmd.Flag("requirement", "Factor requirement: required (default), alternative, conditional").
		Default(string(mfa.RequirementRequired)).
		StringVar(&input.Requirement)

	registerFlowFlags(cmd, &input.FlowInput)

	cmd.Action(func(c *kingpin.ParseContext) error {
		exitCode, err := VerifyCommand(context.Background(), input, s)
		if err != nil {
			app.FatalIfError(FormatErrorWithSuggestion(err), "verify")
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	})
}

// VerifyCommand submits a code and prints the outcome.
// It returns exit code 0 when the code was accepted and 1 otherwise.
func VerifyCommand(ctx context.Context, input VerifyCommandInput, s *SmsOtp) (int, error) {
	requirement, err := mfa.ParseRequirement(input.Requirement)
	if err != nil {
		return 1, err
	}
	if err := validate.ValidateAttemptID(input.AttemptID); err != nil {
		return 1, err
	}

	flow, notes, err := buildFlow(ctx, s, input.FlowInput, true)
	if err != nil {
		return 1, err
	}
	store, err := session.NewChallengeStore(notes, input.AttemptID)
	if err != nil {
		return 1, err
	}

	out := flow.SubmitCode(ctx, input.Code, requirement, store)
	return reportVerification(input.FlowInput, input.AttemptID, out), nil
}

func reportVerification(in FlowInput, attemptID string, out mfa.Outcome) int {
	printOutcome(in.stdout(), in.Output, attemptID, out)
	if out.State == mfa.StateAccepted {
		return 0
	}
	if out.Err != nil {
		FormatErrorWithSuggestionTo(in.stderr(), out.Err)
	}
	return 1
}
