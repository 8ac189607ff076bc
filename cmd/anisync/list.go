package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Guilhem-Bonnet/anisync/internal/app"
	"github.com/Guilhem-Bonnet/anisync/internal/domain"
)

var viewCmd = &cobra.Command{
	Use:   "view <media-id>",
	Short: "Afficher une fiche (cache si elle est fraîche)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withServices(cmd, func(ctx context.Context, s *services) error {
			m, err := s.engine.ViewMedia(ctx, int(id))
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, app.ToMediaDTO(m))
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <texte>",
	Short: "Chercher un média (cache local hors ligne)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")
		q := strings.Join(args, " ")
		return withServices(cmd, func(ctx context.Context, s *services) error {
			res, err := s.engine.SearchMedia(ctx, q, page, perPage)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, app.ToMediaDTOs(res))
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <nom>",
	Short: "Profil public d'un utilisateur",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			p, err := s.engine.FetchUserProfile(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, p)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Entrées de la liste locale",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state, _ := cmd.Flags().GetString("state")
		state = strings.ToUpper(strings.TrimSpace(state))
		return withServices(cmd, func(ctx context.Context, s *services) error {
			entries, err := s.engine.ListEntries(ctx)
			if err != nil {
				return err
			}
			if state != "" {
				kept := entries[:0]
				for _, e := range entries {
					if string(e.SyncState) == state {
						kept = append(kept, e)
					}
				}
				entries = kept
			}
			return printJSON(os.Stdout, app.ToListEntryDTOs(entries))
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set <media-id>",
	Short: "Modifier une entrée (appliquée localement puis poussée)",
	Example: `  anisync set 21 --status CURRENT --progress 12
  anisync set 21 --clear-score`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := setRequestFromFlags(args[0], cmd.Flags())
		if err != nil {
			return err
		}
		return withServices(cmd, func(ctx context.Context, s *services) error {
			entry, err := s.engine.SetListEntry(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, app.ToListEntryDTO(entry))
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <local-id> keep-local|adopt-remote",
	Short: "Trancher un conflit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		choice := domain.ConflictChoice(strings.ToLower(strings.TrimSpace(args[1])))
		if !choice.Valid() {
			return fmt.Errorf("choix invalide %q (keep-local ou adopt-remote)", args[1])
		}
		return withServices(cmd, func(ctx context.Context, s *services) error {
			res, err := s.engine.ForceResolveConflict(ctx, id, choice)
			if err != nil {
				return err
			}
			if res.Deleted {
				fmt.Fprintln(os.Stderr, "Entrée supprimée (absente d'AniList).")
				return nil
			}
			return printJSON(os.Stdout, app.ToListEntryDTO(*res.Entry))
		})
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Conflits en attente de résolution",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			views, err := s.engine.Conflicts(ctx)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, app.ToConflictDTOs(views))
		})
	},
}

func init() {
	searchCmd.Flags().Int("page", 1, "Page de résultats")
	searchCmd.Flags().Int("per-page", 20, "Résultats par page")

	listCmd.Flags().String("state", "", "Filtrer par état: CLEAN, DIRTY ou CONFLICTED")

	setCmd.Flags().String("status", "", "CURRENT, PLANNING, COMPLETED, DROPPED, PAUSED ou REPEATING")
	setCmd.Flags().Float64("score", 0, "Note (0 à 10)")
	setCmd.Flags().Int("progress", 0, "Épisodes ou chapitres vus")
	setCmd.Flags().Bool("clear-score", false, "Retirer la note")

	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("identifiant invalide %q", s)
	}
	return id, nil
}

// setRequestFromFlags ne renseigne que les champs passés explicitement.
func setRequestFromFlags(mediaArg string, flags *pflag.FlagSet) (app.SetListEntryRequest, error) {
	id, err := parseID(mediaArg)
	if err != nil {
		return app.SetListEntryRequest{}, err
	}
	req := app.SetListEntryRequest{MediaID: int(id)}
	if flags.Changed("status") {
		v, _ := flags.GetString("status")
		req.Status = strings.ToUpper(strings.TrimSpace(v))
	}
	if flags.Changed("score") {
		v, _ := flags.GetFloat64("score")
		req.Score = &v
	}
	if flags.Changed("progress") {
		v, _ := flags.GetInt("progress")
		req.Progress = &v
	}
	req.ClearScore, _ = flags.GetBool("clear-score")
	if req.ClearScore && req.Score != nil {
		return app.SetListEntryRequest{}, fmt.Errorf("--score et --clear-score sont exclusifs")
	}
	return req, nil
}
