package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	forceOffline bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "anisync",
	Short: "Liste AniList utilisable hors ligne",
	Long: `anisync garde une copie locale de la liste AniList.

Les modifications sont appliquées au cache puis poussées vers AniList dès que
le réseau le permet. Les changements faits ailleurs sont récupérés par "sync".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "Fichier de configuration (yaml, json ou toml)")
	f.BoolVar(&forceOffline, "offline", false, "Travailler uniquement sur le cache local")
	f.BoolVarP(&verbose, "verbose", "v", false, "Afficher les logs sur stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Erreur:", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
