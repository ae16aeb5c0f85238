package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/audit"
)

const chatHelp = "Commands: /history, /clear, /exit"

func newChatCmd() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			go a.audit.Consume(ctx, a.bus.Subscribe(audit.TopicQueryExecuted))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, chatHelp) //nolint:errcheck
			sc := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ") //nolint:errcheck
				if !sc.Scan() {
					fmt.Fprintln(out) //nolint:errcheck
					return sc.Err()
				}
				line := strings.TrimSpace(sc.Text())
				switch line {
				case "":
					continue
				case "/exit", "/quit":
					return nil
				case "/clear":
					if err := a.chat.ClearHistory(ctx, conversationID); err != nil {
						return err
					}
					fmt.Fprintln(out, "History cleared.") //nolint:errcheck
					continue
				case "/history":
					if err := printHistory(cmd, out, a, conversationID); err != nil {
						return err
					}
					continue
				}

				res, err := a.chat.SendMessage(ctx, conversationID, line)
				if err != nil {
					return err
				}
				if res.LastQuery != "" {
					fmt.Fprintf(out, "[sql] %s (%d rows)\n", res.LastQuery, len(res.LastRows)) //nolint:errcheck
				}
				fmt.Fprintln(out, res.Answer) //nolint:errcheck
			}
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "cli", "conversation id")
	return cmd
}

func printHistory(cmd *cobra.Command, out io.Writer, a *app, id string) error {
	entries, err := a.chat.GetHistory(cmd.Context(), id)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s: %s\n", e.Type, e.Text) //nolint:errcheck
	}
	return nil
}
