package shell

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kstaniek/go-can-hog/internal/oneshot"
	"github.com/spf13/cobra"
)

// newCommandTree builds the per-line command tree. Cobra commands keep parse
// state, so every line gets a fresh tree.
func newCommandTree(sender *oneshot.Sender, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "can-hog",
		Short:         "CAN bus hog shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	canCmd := &cobra.Command{
		Use:   "can",
		Short: "CAN commands",
	}
	sendCmd := &cobra.Command{
		Use:   "send <ID>",
		Short: "Queue one zero-length data frame with the given identifier",
		Long:  "Queue one zero-length data frame. ID uses C literal rules: 0x prefix for hex, leading 0 for octal.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := oneshot.ParseID(args[0])
			if err != nil {
				return err
			}
			if err := sender.CheckReady(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queuing TX frame with CAN ID 0x%03x\n", id)
			if err := sender.Send(id); err != nil {
				return fmt.Errorf("failed to enqueue TX frame: %w", err)
			}
			return nil
		},
	}
	canCmd.AddCommand(sendCmd)
	root.AddCommand(canCmd)
	root.SetOut(out)
	root.SetErr(out)
	return root
}

// Exec runs one command line. A failing command prints "Error: ..." to out
// and returns the error; the session keeps going.
func Exec(ctx context.Context, sender *oneshot.Sender, line string, out io.Writer) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	root := newCommandTree(sender, out)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return err
	}
	return nil
}

func isQuit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit":
		return true
	}
	return false
}
