package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/cmd/cli/commands"
	cliconfig "github.com/inferloop/tsforecast/cmd/cli/config"
	appconfig "github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/pkg/constants"
)

var (
	cfgFile string
	verbose bool
	logger  = logrus.New()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tsforecast",
		Short: "Sales time series forecasting CLI",
		Long: `A command-line interface for forecasting univariate sales time series
with baseline, statistical and gradient boosted models.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+cliconfig.DefaultFileName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cobra.OnInitialize(initLogger)

	rootCmd.AddCommand(commands.NewForecastCmd(loadConfig, logger))
	rootCmd.AddCommand(commands.NewVersionCmd())

	return rootCmd
}

// initLogger keeps command output clean unless --verbose is given
func initLogger() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
}

func loadConfig() (*appconfig.Config, error) {
	cfg, err := cliconfig.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		logger.WithField("config", cliconfig.ResolvePath(cfgFile)).Debug("Loaded configuration")
	}
	return cfg, nil
}
