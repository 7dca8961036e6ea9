package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

const defaultServerURL = "http://localhost:8080"

// newRootCmd creates the episodectl command tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "episodectl",
		Short:         "Upload and inspect podcast episode submissions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("EPISODE_DROP_URL")
	if server == "" {
		server = defaultServerURL
	}
	cmd.PersistentFlags().String("server", server, "episode-drop server URL")

	cmd.AddCommand(
		newUploadCmd(),
		newSubmissionsCmd(),
		newAuthURLCmd(),
	)
	return cmd
}
