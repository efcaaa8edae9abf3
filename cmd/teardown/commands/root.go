// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated
// to handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the teardown CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Delete an AWS compute resource and everything it depends on, in order",
	}

	cmd.AddCommand(Destroy())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
