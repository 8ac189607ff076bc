package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Récupérer la liste AniList puis pousser les modifications locales",
	Long: `Lance une passe complète: la liste distante est réconciliée avec le cache,
puis les entrées DIRTY sont poussées. Avec --push-only, seule la seconde
étape est exécutée.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pushOnly, _ := cmd.Flags().GetBool("push-only")
		return withServices(cmd, func(ctx context.Context, s *services) error {
			if pushOnly {
				report, err := s.engine.PushPending(ctx)
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, report)
			}
			report, err := s.engine.SyncAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, report)
		})
	},
}

func init() {
	syncCmd.Flags().Bool("push-only", false, "Pousser les entrées DIRTY sans relire la liste distante")
	rootCmd.AddCommand(syncCmd)
}
