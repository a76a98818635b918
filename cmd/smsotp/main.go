package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/smsotp/cli"
)

// Version is provided at compile time
var Version = "dev"

func main() {
	app := kingpin.New("smsotp", "SMS one-time-password second factor")
	app.Version(Version)

	s := cli.ConfigureGlobals(app)

	// Challenge commands
	cli.ConfigureChallengeCommand(app, s)
	cli.ConfigureVerifyCommand(app, s)
	cli.ConfigureSimulateCommand(app, s)

	// Config commands
	cli.ConfigureConfigCommand(app, s)

	// Infrastructure
	cli.ConfigureTablesCommand(app, s)

	// Gateway secrets
	cli.ConfigureSecretCommand(app, s)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
