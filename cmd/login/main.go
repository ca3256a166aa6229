// Command login runs the interactive OAuth2 authorization flow once and
// writes the resulting token file, so the service binary can run
// unattended afterward.
package main

import (
	"fmt"
	"os"

	"github.com/PieroV/mirror-to-onedrive/cmd/common"
	"github.com/PieroV/mirror-to-onedrive/driveapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

func usage() {
	fmt.Printf(`mirror-login - authenticate mirror-to-onedrive against a Microsoft account.

This prints an authorization URL. Visit it, approve access, and paste the
"code" query parameter from the page you're redirected to. The resulting
token is written to the configured token file, where the service binary
will pick it up.

Usage: mirror-login [options]

Valid options:
`)
	flag.PrintDefaults()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	configPath := flag.StringP("config-file", "f", common.DefaultConfigPath(),
		"A YAML-formatted configuration file.")
	logLevel := flag.StringP("log", "l", "",
		"Set logging level/verbosity. Can be one of: "+
			fmt.Sprint(common.LogLevels()))
	versionFlag := flag.BoolP("version", "v", false, "Display program version.")
	help := flag.BoolP("help", "h", false, "Displays this help message.")
	flag.Usage = usage
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Println("mirror-login", common.Version())
		os.Exit(0)
	}

	config := common.LoadConfig(*configPath)
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	zerolog.SetGlobalLevel(common.StringToLevel(config.LogLevel))

	os.Remove(config.TokenPath)
	if err := driveapi.Login(config.AuthConfig, config.TokenPath, os.Stdout, os.Stdin); err != nil {
		log.Fatal().Err(err).Msg("Authentication failed.")
	}
	log.Info().Str("path", config.TokenPath).Msg("Token saved.")
}
