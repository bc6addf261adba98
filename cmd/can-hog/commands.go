package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cfg := &appConfig{}
	root := &cobra.Command{
		Use:          "can-hog",
		Short:        "Flood a CAN bus with one constant frame until the stop input fires",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd.Flags(), cfg); err != nil {
				return err
			}
			setupLogger(cfg.logFormat, cfg.logLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHog(cmd.Context(), cfg)
		},
	}
	registerFlags(root.PersistentFlags(), cfg)
	root.AddCommand(
		newHogCmd(cfg),
		newSendCmd(cfg),
		newShellCmd(cfg),
		newVersionCmd(),
	)
	return root
}

func newHogCmd(cfg *appConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "hog",
		Short: "Saturate the bus (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHog(cmd.Context(), cfg)
		},
	}
}

func newSendCmd(cfg *appConfig) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:     "send <ID>",
		Short:   "Queue one zero-length data frame and report its outcome",
		Example: "  can-hog send 0x1A --backend serial --serial /dev/ttyUSB0",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), cfg, args[0], wait, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", time.Second, "How long to wait for the transmit outcome")
	return cmd
}

func newShellCmd(cfg *appConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive command shell on stdin (and on --shell-listen when set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "version",
		Short:            "Print version and exit",
		Args:             cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "can-hog %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
