package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/session"
)

// SimulateCommandInput contains the input for simulate.
type SimulateCommandInput struct {
	FlowInput

	Username    string
	Phone       string
	Code        string // Read from stdin when empty
	Requirement string

	// For testing
	Stdin io.Reader
}

// ConfigureSimulateCommand sets up the simulate command.
func ConfigureSimulateCommand(app *kingpin.Application, s *SmsOtp) {
	input := SimulateCommandInput{}

	cmd := app.Command("simulate", "Run a challenge and its verification in one process")

	cmd.Flag("username", "Login name, used as the phone number when --phone is not set").
		Short('u').
		Required().
		StringVar(&input.Username)

	cmd.Flag("phone", "Registered phone number").
		StringVar(&input.Phone)

	cmd.Flag("code", "Code to submit (prompted for when omitted)").
		StringVar(&input.Code)

	cmd.Flag("requirement", "Factor requirement: required (default), alternative, conditional").
		Default(string(mfa.RequirementRequired)).
		StringVar(&input.Requirement)

	registerFlowFlags(cmd, &input.FlowInput)

	cmd.Action(func(c *kingpin.ParseContext) error {
		exitCode, err := SimulateCommand(context.Background(), input, s)
		if err != nil {
			app.FatalIfError(FormatErrorWithSuggestion(err), "simulate")
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	})
}

// SimulateCommand issues a challenge, reads the code and submits it.
// In simulation mode the expected code is printed to stderr.
// It returns exit code 0 when the code was accepted and 1 otherwise.
func SimulateCommand(ctx context.Context, input SimulateCommandInput, s *SmsOtp) (int, error) {
	requirement, err := mfa.ParseRequirement(input.Requirement)
	if err != nil {
		return 1, err
	}

	flow, notes, err := buildFlow(ctx, s, input.FlowInput, false)
	if err != nil {
		return 1, err
	}

	attemptID, err := session.NewAttemptID()
	if err != nil {
		return 1, fmt.Errorf("failed to generate attempt ID: %w", err)
	}
	store, err := session.NewChallengeStore(notes, attemptID)
	if err != nil {
		return 1, err
	}

	stdout, stderr := input.stdout(), input.stderr()

	out := flow.IssueChallenge(ctx, mfa.UserProfile{Username: input.Username, Phone: input.Phone}, store)
	printOutcome(stdout, input.Output, attemptID, out)
	if out.State != mfa.StateChallenged {
		if out.Err != nil {
			FormatErrorWithSuggestionTo(stderr, out.Err)
		}
		return 1, nil
	}

	if flow.Config().Simulation {
		state, err := store.Load(ctx)
		if err != nil {
			return 1, fmt.Errorf("failed to read challenge state: %w", err)
		}
		fmt.Fprintf(stderr, "Simulation code: %s\n", state.SimulationCode)
	}

	code := input.Code
	if code == "" {
		code, err = promptCode(input.Stdin, stderr)
		if err != nil {
			return 1, err
		}
	}

	out = flow.SubmitCode(ctx, code, requirement, store)
	return reportVerification(input.FlowInput, attemptID, out), nil
}

// promptCode reads one line from stdin, prompting when it is a terminal.
func promptCode(stdin io.Reader, stderr io.Writer) (string, error) {
	if stdin == nil {
		stdin = os.Stdin
	}
	if f, ok := stdin.(*os.File); ok && isATerminal(f) {
		fmt.Fprint(stderr, "Enter code: ")
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read code: %w", err)
	}
	return strings.TrimSpace(line), nil
}
