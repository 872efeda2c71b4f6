package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Swind/go-kick-runner/core"
)

func init() {
	rootCmd.AddCommand(ticksCmd)
}

var ticksCmd = &cobra.Command{
	Use:   "ticks",
	Short: "Print milliseconds since process start",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), core.GetTicks())
		return err
	},
}
