// Command service runs the perpetual, unattended mirror loop: load
// configuration, open the catalog, and hand both to a service.Scheduler
// until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PieroV/mirror-to-onedrive/catalog"
	"github.com/PieroV/mirror-to-onedrive/cmd/common"
	"github.com/PieroV/mirror-to-onedrive/driveapi"
	"github.com/PieroV/mirror-to-onedrive/mirror"
	"github.com/PieroV/mirror-to-onedrive/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

func usage() {
	fmt.Printf(`mirror-service - run the one-way local-to-OneDrive mirror in the background.

This will repeatedly walk the configured local directories and upload
anything new or changed to the matching OneDrive folders. It runs until
interrupted and expects a token file already created by mirror-login.

Usage: mirror-service [options]

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
		fmt.Println("mirror-service", common.Version())
		os.Exit(0)
	}

	config := common.LoadConfig(*configPath)
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	zerolog.SetGlobalLevel(common.StringToLevel(config.LogLevel))

	log.Info().Msgf("mirror-service %s", common.Version())

	store, err := catalog.Open(config.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.CatalogPath).Msg("Could not open catalog.")
	}
	defer store.Close()

	newClient := func() (mirror.RemoteClient, error) {
		auth, err := driveapi.LoadAuth(config.TokenPath)
		if err != nil {
			return nil, err
		}
		return driveapi.NewClient(auth), nil
	}

	scheduler := service.NewScheduler(newClient, store, config.SyncRoots())
	if config.HashFrequency > 0 {
		scheduler.HashFrequency = config.HashFrequency
	}

	stop := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Signal received, shutting down after the current cycle.")
		close(stop)
	}()

	scheduler.Run(stop)
	log.Info().Msg("Service stopped.")
}
