package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stewardlab/steward/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the steward version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("steward version %s\n", version.Get())
	},
}
