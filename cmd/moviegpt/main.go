// MovieGPT: ask questions about a movie database in plain language.
package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matiasleandrokruk/moviegpt/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, in io.Reader, out, errOut io.Writer) int {
	root := newRootCmd(in, out, errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "moviegpt",
		Short:        "Conversational front end over a read-only movie database",
		Version:      version.Version,
		SilenceUsage: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetVersionTemplate(version.String() + "\n")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newChatCmd(),
		newMCPCmd(),
		newHashSecretCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), version.String()+"\n")
			return err
		},
	}
}
