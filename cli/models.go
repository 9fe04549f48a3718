package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models [view]",
		Short: "Aggregated models",
		Long:  `View the models produced by completed rounds.`,
	}

	viewCmd := &cobra.Command{
		Use:   "view <experiment_id> [version]",
		Short: "View model",
		Long:  `View a model version of an experiment. The latest model is shown when no version is given.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 || len(args) > 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			version := 0
			if len(args) == 2 {
				v, err := strconv.Atoi(args[1])
				if err != nil || v < 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}
				version = v
			}

			m, err := fsdk.GetModel(args[0], version)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	}

	cmd.AddCommand(viewCmd)

	return cmd
}
