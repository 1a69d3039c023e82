package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/industry-viz/internal/loader"
	"github.com/sells-group/industry-viz/internal/route"
)

var loadCmd = &cobra.Command{
	Use:   "load <industry_id> <source_type> [variable]",
	Short: "Load and enrich one industry visualization",
	Long:  "Fetches the industry and its departments, cities or occupations, enriches the rows against the metadata tables and prints the view.",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("load"); err != nil {
			return err
		}
		visualization, _ := cmd.Flags().GetString("visualization")
		output, _ := cmd.Flags().GetString("output")

		var variable string
		if len(args) == 3 {
			variable = args[2]
		}
		p, err := route.ParseParams(args[0], visualization, args[1], variable)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		view, err := loadView(ctx, env, p)
		if err != nil {
			return err
		}
		return writeOutput(os.Stdout, output, view)
	},
}

func loadView(ctx context.Context, env *appEnv, p route.Params) (*route.View, error) {
	tables, err := env.Metadata.Tables(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "load metadata")
	}
	result, err := env.Loader.Load(ctx, loader.Request{
		IndustryID: p.IndustryID,
		SourceType: p.SourceType,
		Variable:   p.Variable,
	}, *tables)
	if err != nil {
		return nil, err
	}
	return route.NewView(result, p, tables), nil
}

func init() {
	loadCmd.Flags().String("visualization", "tree", "visualization type recorded in the view")
	loadCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(loadCmd)
}
