package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"todoe2e/internal/color"
	"todoe2e/internal/dbreset"
	"todoe2e/internal/dbx"
)

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or reset the test database",
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop the app tables and recreate the schema",
		Long: `Drops Users, Projects and Todos and recreates them from the embedded
schema, exactly as is done before every scenario. All data is lost.`,
		Args: cobra.NoArgs,
		RunE: runDBReset,
	}

	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the test database with their row counts",
		Args:  cobra.NoArgs,
		RunE:  runDBTables,
	}

	dbCmd.AddCommand(resetCmd, tablesCmd)
	return dbCmd
}

func init() {
	rootCmd.AddCommand(newDBCmd())
}

func openResetter() (*dbreset.Resetter, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := dbx.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbreset.New(db), nil
}

func runDBReset(cmd *cobra.Command, args []string) error {
	r, err := openResetter()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := r.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.IconText(color.IconPassed, "database reset"))
	return nil
}

func runDBTables(cmd *cobra.Command, args []string) error {
	r, err := openResetter()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	tables, err := r.ListTables(ctx)
	if err != nil {
		return err
	}
	counts, err := r.RowCounts(ctx)
	if err != nil {
		return err
	}
	printTables(cmd.OutOrStdout(), tables, counts)
	return nil
}

// printTables lists tables; tables without a count are not app tables.
func printTables(w io.Writer, tables []string, counts map[string]int64) {
	if len(tables) == 0 {
		fmt.Fprintln(w, color.Muted.Render("no tables"))
		return
	}

	width := 0
	for _, t := range tables {
		width = max(width, color.Width(t))
	}
	for _, t := range tables {
		n, ok := counts[t]
		if !ok {
			fmt.Fprintf(w, "%s %s\n", color.PadRight(t, width), color.Muted.Render("-"))
			continue
		}
		fmt.Fprintf(w, "%s %d\n", color.PadRight(t, width), n)
	}
}
