package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/industry-viz/internal/metadata"
	"github.com/sells-group/industry-viz/internal/store"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Manage metadata table snapshots",
	Long:  "Commands for syncing the locations and occupations tables into the store and inspecting stored snapshots.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("metadata")
	},
}

// -- metadata sync --

var metadataSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh stored snapshots from the data API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		output, _ := cmd.Flags().GetString("output")

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		results, err := metadata.NewProvider(newClient(cfg.API), st).Sync(ctx)
		if err != nil {
			return eris.Wrap(err, "metadata sync")
		}
		return writeOutput(os.Stdout, output, results)
	},
}

// -- metadata show --

var metadataShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored snapshots",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		output, _ := cmd.Flags().GetString("output")

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snaps, err := st.ListSnapshots(ctx)
		if err != nil {
			return eris.Wrap(err, "metadata show")
		}
		if output == "table" {
			formatSnapshots(os.Stdout, snaps)
			return nil
		}
		return writeOutput(os.Stdout, output, snaps)
	},
}

func formatSnapshots(out io.Writer, snaps []store.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No snapshots stored. Run `industry-viz metadata sync`.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENTRIES\tETAG\tSYNCED")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Name, s.Entries, s.ETag, s.SyncedAt.Format(time.RFC3339))
	}
	w.Flush() //nolint:errcheck
}

func init() {
	metadataSyncCmd.Flags().StringP("output", "o", "yaml", "output format: json or yaml")
	metadataShowCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	metadataCmd.AddCommand(metadataSyncCmd, metadataShowCmd)
	rootCmd.AddCommand(metadataCmd)
}
