package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/anisync/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/anisync/internal/logging"
)

const loginTimeout = 5 * time.Minute

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Se connecter à AniList",
	Long: `Ouvre un listener local sur redirect_uri, affiche l'URL d'autorisation
puis attend la redirection d'AniList (5 minutes au plus).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			cb, err := httpapi.NewCallbackServer(logging.Component(s.logger, "callback"), s.auth, s.cfg.RedirectURI)
			if err != nil {
				return err
			}
			if err := cb.Start(); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = cb.Shutdown(shutdownCtx)
			}()

			authURL, err := s.auth.BeginAuthorization()
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Ouvrez cette URL dans un navigateur :")
			fmt.Println(authURL)

			waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
			defer cancel()
			if _, err := cb.Wait(waitCtx); err != nil {
				return err
			}

			viewer, err := s.engine.RefreshViewer(ctx)
			if err != nil {
				// Le credential est enregistré; le viewer sera relu au prochain sync.
				s.logger.Warn().Err(err).Msg("viewer refresh after login failed")
				fmt.Fprintln(os.Stderr, "Connecté.")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Connecté en tant que %s.\n", viewer.Name)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Oublier le credential (le cache local est conservé)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			return s.engine.Logout(ctx)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "État de la session et de la synchro",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			auth, err := s.auth.Status(ctx)
			if err != nil {
				return err
			}
			sync, err := s.engine.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, map[string]any{"auth": auth, "sync": sync})
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}
