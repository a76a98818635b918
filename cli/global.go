package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/byteness/keyring"
	isatty "github.com/mattn/go-isatty"
	"golang.org/x/term"
)

var keyringConfigDefaults = keyring.Config{
	ServiceName:             "smsotp",
	FilePasswordFunc:        fileKeyringPassphrasePrompt,
	LibSecretCollectionName: "smsotp",
	KWalletAppID:            "smsotp",
	KWalletFolder:           "smsotp",
	WinCredPrefix:           "smsotp",

	// macOS Keychain security hardening:
	// - AccessibleWhenUnlocked: false = credentials unavailable when device locked
	// - Synchronizable: false = prevent credential sync to iCloud
	KeychainTrustApplication:       true,
	KeychainAccessibleWhenUnlocked: false,
	KeychainSynchronizable:         false,

	// Linux kernel keyring: possessor-only permissions in the user keyring.
	KeyCtlScope: "user",
	KeyCtlPerm:  0x3f000000, // KEYCTL_PERM_ALL << KEYCTL_PERM_PROCESS
}

// SmsOtp holds shared state for all smsotp commands.
type SmsOtp struct {
	Debug          bool
	Region         string
	KeyringConfig  keyring.Config
	KeyringBackend string

	keyringImpl keyring.Keyring
	awsConfig   *aws.Config
}

func isATerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Keyring returns the keyring instance, opening it if necessary.
func (s *SmsOtp) Keyring() (keyring.Keyring, error) {
	if s.keyringImpl == nil {
		if s.KeyringBackend != "" {
			s.KeyringConfig.AllowedBackends = []keyring.BackendType{keyring.BackendType(s.KeyringBackend)}
		}
		var err error
		s.keyringImpl, err = keyring.Open(s.KeyringConfig)
		if err != nil {
			return nil, err
		}
	}

	return s.keyringImpl, nil
}

// AWSConfig loads the default AWS configuration once.
func (s *SmsOtp) AWSConfig(ctx context.Context) (aws.Config, error) {
	if s.awsConfig == nil {
		var opts []func(*awsconfig.LoadOptions) error
		if s.Region != "" {
			opts = append(opts, awsconfig.WithRegion(s.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s.awsConfig = &cfg
	}
	return *s.awsConfig, nil
}

// ConfigureGlobals sets up global flags for the smsotp CLI.
func ConfigureGlobals(app *kingpin.Application) *SmsOtp {
	s := &SmsOtp{
		KeyringConfig: keyringConfigDefaults,
	}

	backendsAvailable := []string{}
	for _, backendType := range keyring.AvailableBackends() {
		backendsAvailable = append(backendsAvailable, string(backendType))
	}

	app.Flag("debug", "Show debugging output").
		BoolVar(&s.Debug)

	app.Flag("region", "AWS region for SSM, SNS, DynamoDB and Secrets Manager").
		Envar("AWS_REGION").
		StringVar(&s.Region)

	app.Flag("backend", fmt.Sprintf("Keyring backend for keyring: secret references %v", backendsAvailable)).
		Default(backendsAvailable[0]).
		Envar("SMSOTP_KEYRING_BACKEND").
		EnumVar(&s.KeyringBackend, backendsAvailable...)

	app.Flag("keychain", "Name of macOS keychain to use, if it doesn't exist it will be created").
		Default("smsotp").
		Envar("SMSOTP_KEYCHAIN_NAME").
		StringVar(&s.KeyringConfig.KeychainName)

	app.Flag("pass-dir", "Pass password store directory").
		Envar("SMSOTP_PASS_PASSWORD_STORE_DIR").
		StringVar(&s.KeyringConfig.PassDir)

	app.Flag("file-dir", "Directory for the \"file\" password store").
		Default("~/.smsotp/keys/").
		Envar("SMSOTP_FILE_DIR").
		StringVar(&s.KeyringConfig.FileDir)

	app.PreAction(func(c *kingpin.ParseContext) error {
		if !s.Debug {
			log.SetOutput(io.Discard)
		}
		keyring.Debug = s.Debug

		log.Printf("smsotp %s", app.Model().Version)
		return nil
	})

	return s
}

func fileKeyringPassphrasePrompt(prompt string) (string, error) {
	if password, ok := os.LookupEnv("SMSOTP_FILE_PASSPHRASE"); ok {
		return password, nil
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(os.Stderr)
	return string(b), nil
}
