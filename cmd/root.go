// Package cmd wires the gbtk subcommand tree: asm, link, and map, plus the
// shared configuration and logging setup every subcommand uses.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/brackenfield/gbtk/cmd/asm"
	"github.com/brackenfield/gbtk/cmd/link"
	mapcmd "github.com/brackenfield/gbtk/cmd/map"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Verbose is shared by every subcommand: -v on any of them lowers the trace
// log's level to debug and turns on the JSON trace handler. The diagnostic
// sink's output does not depend on it.
var Verbose bool

var RootCmd = &cobra.Command{
	Use:   "gbtk",
	Short: "A Game Boy assembler/linker toolchain",
	Long: `gbtk assembles Game Boy SM83 source into relocatable object files and
links them into a finished ROM image, following the RGBDS object format and
placement rules.`,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gbtk.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "enable verbose trace logging")

	RootCmd.AddCommand(asm.AsmCmd, link.LinkCmd, mapcmd.MapCmd)
	cobra.OnInitialize(initConfig, initLogging)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gbtk")
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging installs the process-wide slog.Logger: the engineering trace
// of passes run (lexing, parsing, placement, emission), distinct from the
// diag.Diagnostic user-facing output each subcommand prints separately.
func initLogging() {
	slog.SetDefault(slog.New(NewTraceHandler(Verbose)))
}
