package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/virtforensics/memory-inspector/internal/cli"
)

func main() {
	command := NewInspectorCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewInspectorCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspector [flags] [options]",
		Short: "inspector controls the Memory Inspector service.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdSubmit())
	cmd.AddCommand(cli.NewCmdCancel())
	cmd.AddCommand(cli.NewCmdDelete())
	cmd.AddCommand(cli.NewCmdReport())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
