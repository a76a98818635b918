package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/session"
)

// ChallengeCommandInput contains the input for challenge.
type ChallengeCommandInput struct {
	FlowInput

	AttemptID string // Generated when empty
	Username  string
	Phone     string
}

// ConfigureChallengeCommand sets up the challenge command.
func ConfigureChallengeCommand(app *kingpin.Application, s *SmsOtp) {
	input := ChallengeCommandInput{}

	cmd := app.Command("challenge", "Send a one-time code to a user's phone")

	cmd.Flag("username", "Login name, used as the phone number when --phone is not set").
		Short('u').
		Required().
		StringVar(&input.Username)

	cmd.Flag("phone", "Registered phone number").
		StringVar(&input.Phone)

	cmd.Flag("attempt-id", "Attempt ID to record the challenge under (generated if omitted)").
		StringVar(&input.AttemptID)

	registerFlowFlags(cmd, &input.FlowInput)

	cmd.Action(func(c *kingpin.ParseContext) error {
		exitCode, err := ChallengeCommand(context.Background(), input, s)
		if err != nil {
			app.FatalIfError(FormatErrorWithSuggestion(err), "challenge")
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	})
}

// ChallengeCommand issues a challenge and prints the outcome.
// It returns exit code 0 when the code was sent and 1 otherwise.
func ChallengeCommand(ctx context.Context, input ChallengeCommandInput, s *SmsOtp) (int, error) {
	flow, notes, err := buildFlow(ctx, s, input.FlowInput, true)
	if err != nil {
		return 1, err
	}

	attemptID := input.AttemptID
	if attemptID == "" {
		attemptID, err = session.NewAttemptID()
		if err != nil {
			return 1, fmt.Errorf("failed to generate attempt ID: %w", err)
		}
	}
	store, err := session.NewChallengeStore(notes, attemptID)
	if err != nil {
		return 1, err
	}

	out := flow.IssueChallenge(ctx, mfa.UserProfile{Username: input.Username, Phone: input.Phone}, store)
	printOutcome(input.stdout(), input.Output, attemptID, out)
	if out.State != mfa.StateChallenged {
		if out.Err != nil {
			FormatErrorWithSuggestionTo(input.stderr(), out.Err)
		}
		return 1, nil
	}
	return 0, nil
}
