package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tale",
	Short: "Tale runs tick-driven interactive fiction and MUD stories.",
	Long: `Tale runs tick-driven interactive fiction and MUD stories on a ` +
		`shared scheduling core. Currently, it supports running the bundled ` +
		`survival demo with monitoring and trace recording.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
