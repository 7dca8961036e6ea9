package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/episode-drop/internal/mediainfo"
	"github.com/maauso/episode-drop/internal/uploader"
)

type uploadOptions struct {
	episode string
	notes   string
	audio   string
	video   string
}

func newUploadCmd() *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an episode's audio and video files",
		Long:  "Stream the given files straight to episode storage and record the submission.",
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := cmd.Flags().GetString("server")
			if err != nil {
				return err
			}
			return runUpload(cmd, server, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.episode, "episode", "e", "", "episode number")
	cmd.Flags().StringVarP(&opts.notes, "notes", "n", "", "editing notes")
	cmd.Flags().StringVar(&opts.audio, "audio", "", "path to the audio file")
	cmd.Flags().StringVar(&opts.video, "video", "", "path to the video file")
	_ = cmd.MarkFlagRequired("episode")
	return cmd
}

func runUpload(cmd *cobra.Command, server string, opts *uploadOptions) error {
	out := cmd.OutOrStdout()

	audio, closeAudio, err := openMedia(out, opts.audio, uploader.SlotAudio)
	if err != nil {
		return err
	}
	defer closeAudio()

	video, closeVideo, err := openMedia(out, opts.video, uploader.SlotVideo)
	if err != nil {
		return err
	}
	defer closeVideo()

	lastPct := -1
	client, err := uploader.NewClient(server,
		uploader.WithStateListener(func(s uploader.State) {
			lastPct = -1
			fmt.Fprintf(out, "%s %s\n", cyan("•"), stateLabel(s))
		}),
		uploader.WithProgress(func(p uploader.Progress) {
			if p.Percent == lastPct {
				return
			}
			lastPct = p.Percent
			if p.Percent%25 == 0 {
				fmt.Fprintf(out, "  %s %s %3d%%\n", gray(string(p.Slot)), p.FileName, p.Percent)
			}
		}),
	)
	if err != nil {
		return err
	}

	res, err := client.Submit(cmd.Context(), uploader.Submission{
		EpisodeNumber: opts.episode,
		EditingNotes:  opts.notes,
		Audio:         audio,
		Video:         video,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Episode %s uploaded\n", green("✓"), bold(res.EpisodeNumber))
	if res.AudioURL != nil {
		fmt.Fprintf(out, "  audio: %s\n", *res.AudioURL)
	}
	if res.VideoURL != nil {
		fmt.Fprintf(out, "  video: %s\n", *res.VideoURL)
	}
	return nil
}

// openMedia probes path and opens it for upload. An empty path yields a nil file.
func openMedia(out io.Writer, path string, slot uploader.Slot) (*uploader.File, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}

	info, err := mediainfo.Probe(path)
	if err != nil {
		return nil, nil, fmt.Errorf("inspect %s file: %w", slot, err)
	}
	if slot == uploader.SlotAudio && !info.IsAudio() {
		fmt.Fprintf(out, "%s %s does not look like audio (%s)\n", yellow("warning:"), info.Name, info.MimeType)
	}
	if slot == uploader.SlotVideo && !info.IsVideo() {
		fmt.Fprintf(out, "%s %s does not look like video (%s)\n", yellow("warning:"), info.Name, info.MimeType)
	}
	if info.Duration > 0 {
		fmt.Fprintf(out, "%s %s %s\n", gray(string(slot)), info.Title, info.Duration.Round(time.Second))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s file: %w", slot, err)
	}
	return &uploader.File{
		Name:     info.Name,
		MimeType: info.MimeType,
		Size:     info.Size,
		Body:     f,
	}, func() { _ = f.Close() }, nil
}

func stateLabel(s uploader.State) string {
	switch s {
	case uploader.StateRequestingFolder:
		return "Preparing episode folder"
	case uploader.StateUploadingAudio:
		return "Uploading audio"
	case uploader.StateUploadingVideo:
		return "Uploading video"
	case uploader.StateRecordingMetadata:
		return "Saving episode details"
	case uploader.StateSuccess:
		return green("Done")
	case uploader.StateFailed:
		return red("Failed")
	default:
		return string(s)
	}
}
