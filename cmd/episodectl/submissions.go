package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/episode-drop/internal/uploader"
)

func newSubmissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submissions",
		Short: "List recorded episode submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := cmd.Flags().GetString("server")
			if err != nil {
				return err
			}

			client, err := uploader.NewClient(server)
			if err != nil {
				return err
			}
			listing, err := client.Submissions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list submissions: %w", err)
			}
			printListing(cmd.OutOrStdout(), listing)
			return nil
		},
	}
}

func printListing(out io.Writer, listing uploader.Listing) {
	if len(listing.Submissions) == 0 {
		fmt.Fprintln(out, gray("No episodes uploaded yet"))
	} else {
		fmt.Fprintf(out, "%s\n\n", bold(fmt.Sprintf("%d episode submissions", listing.Total)))

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "EPISODE\tUPLOADED\tAUDIO\tVIDEO\tNOTES")
		for _, s := range listing.Submissions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				s.EpisodeNumber,
				s.UploadedAt.Local().Format(time.DateTime),
				orDash(s.AudioURL),
				orDash(s.VideoURL),
				truncate(s.EditingNotes, 40),
			)
		}
		_ = tw.Flush()
	}

	for _, e := range listing.Errors {
		fmt.Fprintf(out, "%s %s (%s): %s\n", yellow("skipped"), e.Name, e.ObjectID, e.Error)
	}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
