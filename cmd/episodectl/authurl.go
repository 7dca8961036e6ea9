package main

import (
	"errors"
	"fmt"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/maauso/episode-drop/internal/config"
	"github.com/maauso/episode-drop/internal/oauth"
)

// ErrOAuthNotConfigured is returned when no Google client is set in the environment.
var ErrOAuthNotConfigured = errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")

func newAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-url",
		Short: "Print the Google consent URL for the configured OAuth client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{}
			if err := envconfig.Process(cmd.Context(), cfg); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.OAuthEnabled() {
				return ErrOAuthNotConfigured
			}

			client := oauth.NewClient(oauth.NewConfig(oauth.Settings{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.RedirectURI(),
			}))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, bold("Open this URL to authorize Google Drive access:"))
			fmt.Fprintln(out, client.AuthCodeURL(oauth.GenerateState()))
			fmt.Fprintln(out, gray("Then copy the refresh token from "+cfg.PublicURL+"/api/auth/get-token into GOOGLE_REFRESH_TOKEN."))
			return nil
		},
	}
}
