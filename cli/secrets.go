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
	"github.com/byteness/keyring"
	"golang.org/x/term"

	"github.com/byteness/smsotp/gateway"
	"github.com/byteness/smsotp/lambda"
)

// secretResolver resolves keyring: references from the OS keyring and
// secretsmanager: references through AWS Secrets Manager.
type secretResolver struct {
	keyring        func() (keyring.Keyring, error)
	secretsManager func(ctx context.Context) (gateway.SecretResolver, error)
}

// newSecretResolver builds the resolver gateway params are resolved with.
func newSecretResolver(s *SmsOtp) *secretResolver {
	var sm gateway.SecretResolver
	return &secretResolver{
		keyring: s.Keyring,
		secretsManager: func(ctx context.Context) (gateway.SecretResolver, error) {
			if sm == nil {
				awsCfg, err := s.AWSConfig(ctx)
				if err != nil {
					return nil, err
				}
				sm = lambda.NewCachedSecretsLoader(awsCfg)
			}
			return sm, nil
		},
	}
}

// Resolve implements gateway.SecretResolver.
func (r *secretResolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, gateway.KeyringPrefix):
		key := strings.TrimPrefix(ref, gateway.KeyringPrefix)
		kr, err := r.keyring()
		if err != nil {
			return "", fmt.Errorf("open keyring: %w", err)
		}
		item, err := kr.Get(key)
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("keyring item %q not found, store it with: smsotp secret set %s", key, key)
		}
		if err != nil {
			return "", fmt.Errorf("read keyring item %q: %w", key, err)
		}
		return string(item.Data), nil
	case strings.HasPrefix(ref, gateway.SecretsManagerPrefix):
		sm, err := r.secretsManager(ctx)
		if err != nil {
			return "", err
		}
		return sm.Resolve(ctx, ref)
	default:
		return "", fmt.Errorf("unsupported secret reference %q", ref)
	}
}

// SecretSetCommandInput contains the input for secret set.
type SecretSetCommandInput struct {
	Key string

	// For testing
	Stdin  io.Reader
	Stderr io.Writer
}

// SecretRemoveCommandInput contains the input for secret remove.
type SecretRemoveCommandInput struct {
	Key string
}

// ConfigureSecretCommand sets up the secret command with its subcommands.
func ConfigureSecretCommand(app *kingpin.Application, s *SmsOtp) {
	secretCmd := app.Command("secret", "Manage gateway secrets in the OS keyring")

	setInput := SecretSetCommandInput{}
	set := secretCmd.Command("set", "Store a secret referenced as keyring:<key>")
	set.Arg("key", "Keyring item name").
		Required().
		StringVar(&setInput.Key)
	set.Action(func(c *kingpin.ParseContext) error {
		kr, err := s.Keyring()
		if err != nil {
			return err
		}
		err = SecretSetCommand(setInput, kr)
		app.FatalIfError(err, "secret set")
		return nil
	})

	removeInput := SecretRemoveCommandInput{}
	remove := secretCmd.Command("remove", "Delete a stored secret").Alias("rm")
	remove.Arg("key", "Keyring item name").
		Required().
		StringVar(&removeInput.Key)
	remove.Action(func(c *kingpin.ParseContext) error {
		kr, err := s.Keyring()
		if err != nil {
			return err
		}
		err = SecretRemoveCommand(removeInput, kr)
		app.FatalIfError(err, "secret remove")
		return nil
	})
}

// SecretSetCommand reads a secret and stores it under input.Key.
// A terminal stdin is read without echo.
func SecretSetCommand(input SecretSetCommandInput, kr keyring.Keyring) error {
	stderr := input.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	stdin := input.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	var value string
	if f, ok := stdin.(*os.File); ok && isATerminal(f) {
		fmt.Fprintf(stderr, "Enter secret for %s: ", input.Key)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stderr)
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		value = string(b)
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read secret: %w", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}

	if value == "" {
		return errors.New("secret cannot be empty")
	}

	err := kr.Set(keyring.Item{
		Key:   input.Key,
		Label: "smsotp gateway secret " + input.Key,
		Data:  []byte(value),
	})
	if err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	fmt.Fprintf(stderr, "Stored secret %s, reference it as %s%s\n", input.Key, gateway.KeyringPrefix, input.Key)
	return nil
}

// SecretRemoveCommand deletes the secret stored under input.Key.
func SecretRemoveCommand(input SecretRemoveCommandInput, kr keyring.Keyring) error {
	if err := kr.Remove(input.Key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("no secret stored for %s", input.Key)
		}
		return err
	}
	return nil
}
