package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zelotez/winemgr/internal/output"
	"github.com/zelotez/winemgr/internal/scanner"
)

var (
	appsSearch string
	appsAll    bool
	appsOutput string

	appsCmd = &cobra.Command{
		Use:   "apps PREFIX",
		Short: "List the programs installed in a prefix",
		Long: `List every .exe on the C: drive of a prefix. Programs below the Windows
directory are hidden unless --all is given. Favorites are starred.`,
		Example: `  # Programs of a prefix found by 'winemgr prefixes'
  winemgr apps Steam

  # Search by name or path
  winemgr apps ~/.wine --search setup

  # Include the Windows system programs
  winemgr apps ~/.wine --all`,
		Args: cobra.ExactArgs(1),
		RunE: runApps,
	}
)

func init() {
	appsCmd.Flags().StringVarP(&appsSearch, "search", "s", "", "only show programs whose path contains this text")
	appsCmd.Flags().BoolVarP(&appsAll, "all", "a", false, "include programs below the Windows directory")
	appsCmd.Flags().StringVarP(&appsOutput, "output", "o", "table", "output format: table, json or yaml")
}

func runApps(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(appsOutput)
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

	apps, err := scanner.New(componentLogger("scanner")).Scan(commandContext(cmd), prefix)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", prefix, err)
	}
	apps = scanner.Filter(apps, appsSearch, !appsAll)

	if format != output.FormatTable {
		return output.Encode(cmd.OutOrStdout(), format, apps)
	}
	favorites := make(map[string]bool)
	for _, exe := range cfg.Favorites(prefix) {
		favorites[exe] = true
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderAppTable(apps, favorites))
	return nil
}
