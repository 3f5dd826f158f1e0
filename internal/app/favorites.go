package app

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/output"
	"github.com/zelotez/winemgr/internal/scanner"
)

var (
	favoritesOutput string

	favoritesCmd = &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage favorite programs of a prefix",
		Long: `Keep a short, ordered list of the programs you start most in each prefix.

PREFIX is a prefix path or the name shown by 'winemgr prefixes'. EXE is an
absolute path or a path relative to the prefix's C: drive.`,
	}

	favoritesListCmd = &cobra.Command{
		Use:   "list PREFIX",
		Short: "List favorites with their launch statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  runFavoritesList,
	}

	favoritesAddCmd = &cobra.Command{
		Use:     "add PREFIX EXE",
		Short:   "Add a program to the favorites",
		Example: `  winemgr favorites add Steam "Program Files (x86)/Steam/steam.exe"`,
		Args:    cobra.ExactArgs(2),
		RunE:    runFavoritesAdd,
	}

	favoritesRemoveCmd = &cobra.Command{
		Use:     "remove PREFIX EXE",
		Aliases: []string{"rm"},
		Short:   "Remove a program from the favorites",
		Args:    cobra.ExactArgs(2),
		RunE:    runFavoritesRemove,
	}
)

func init() {
	favoritesListCmd.Flags().StringVarP(&favoritesOutput, "output", "o", "table", "output format: table, json or yaml")

	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
}

func runFavoritesList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(favoritesOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prefix, err := resolvePrefix(cfg, args[0])
	if err != nil {
		return err
	}

	rows := favoriteRows(prefix, cfg.Favorites(prefix))
	if format != output.FormatTable {
		return output.Encode(cmd.OutOrStdout(), format, rows)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderFavoritesTable(rows))
	return nil
}

// favoriteRows joins favorites with their launch history. Without a
// history database the statistics stay empty.
func favoriteRows(prefix string, favorites []string) []output.FavoriteRow {
	rows := make([]output.FavoriteRow, 0, len(favorites))
	for _, exe := range favorites {
		rows = append(rows, output.FavoriteRow{Exe: exe})
	}
	if len(rows) == 0 {
		return rows
	}

	db, err := openHistory()
	if err != nil {
		componentLogger("history").Debug("history unavailable", "err", err)
		return rows
	}
	defer db.Close()

	for i := range rows {
		if n, err := db.LaunchCount(prefix, rows[i].Exe); err == nil {
			rows[i].Launches = n
		}
		if last, err := db.LastLaunch(prefix, rows[i].Exe); err == nil && last != nil {
			rows[i].LastLaunched = *last
		}
	}
	return rows
}

func runFavoritesAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prefix, err := resolvePrefix(cfg, args[0])
	if err != nil {
		return err
	}
	exe, err := resolveExe(prefix, args[1])
	if err != nil {
		return err
	}

	if slices.Contains(cfg.Favorites(prefix), exe) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already a favorite.\n", filepath.Base(exe))
		return nil
	}
	if err := saveConfig(cfg.WithFavorite(prefix, exe)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s to the favorites of %s.\n", filepath.Base(exe), prefix)
	return nil
}

func runFavoritesRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prefix, err := resolvePrefix(cfg, args[0])
	if err != nil {
		return err
	}

	// The file may be gone already, so match the stored entry by path first
	// and by resolved path second.
	favorites := cfg.Favorites(prefix)
	exe := args[1]
	if !slices.Contains(favorites, exe) {
		if resolved, err := resolveExe(prefix, exe); err == nil {
			exe = resolved
		} else if !filepath.IsAbs(exe) {
			exe = filepath.Join(scanner.Drive(prefix), filepath.FromSlash(exe))
		}
	}
	if !slices.Contains(favorites, exe) {
		return fmt.Errorf("%s is not a favorite of %s", args[1], prefix)
	}

	if err := saveConfig(cfg.WithoutFavorite(prefix, exe)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the favorites of %s.\n", filepath.Base(exe), prefix)
	return nil
}
