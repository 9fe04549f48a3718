package cli

import (
	"errors"
	"strconv"

	"github.com/absmach/fedagg/pkg/cron"
	"github.com/absmach/fedagg/pkg/sdk"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	DefTLSVerification        = false
	DefCoordinatorURL         = "http://localhost:7070"
	defOffset          uint64 = 0
	defLimit           uint64 = 10
)

var fsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	fsdk = s
}

func NewExperimentsCmd() *cobra.Command {
	var (
		cfg         sdk.ExperimentConfig
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "experiments [create|view|list|complete]",
		Short: "Experiments manager",
		Long:  `Create, view, list experiments and complete their rounds.`,
	}

	createCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create experiment",
		Long: `Create an experiment aggregating client values of the given type.

Examples:
  # Weighted mean of a float32 vector, completed after three updates
  fedagg-cli experiments create mnist --type "float32[10]" --weighted --k 3

  # Complete a round every ten minutes
  fedagg-cli experiments create hourly --type "float32[10]" --schedule "@every 10m"

  # Prompt for every setting
  fedagg-cli experiments create --interactive`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			if len(args) == 1 {
				cfg.Name = args[0]
			}

			if interactive {
				if err := experimentForm(&cfg).Run(); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			if cfg.ValueType == "" {
				logUsageCmd(*cmd, cmd.Use+" --type <value type>")

				return
			}

			e, err := fsdk.CreateExperiment(cfg)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, e)
		},
	}

	createCmd.Flags().StringVarP(&cfg.ValueType, "type", "t", "", "Value type of client updates, e.g. float32[10] or <w=float32[2],b=float32>")
	createCmd.Flags().BoolVarP(&cfg.Weighted, "weighted", "w", false, "Weight updates by their number of samples")
	createCmd.Flags().BoolVar(&cfg.NoNaNDivision, "no-nan", false, "Return zero instead of NaN when the total weight is zero")
	createCmd.Flags().IntVarP(&cfg.KOfN, "k", "k", 0, "Complete a round automatically after k updates")
	createCmd.Flags().StringVarP(&cfg.RoundSchedule, "schedule", "s", "", "Cron expression completing rounds periodically, e.g. \"@every 10m\"")
	createCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for experiment settings")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View experiment",
		Long:  `View experiment.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			e, err := fsdk.GetExperiment(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, e)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Long:  `List experiments.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			p, err := fsdk.ListExperiments(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, p)
		},
	}

	completeCmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete round",
		Long:  `Aggregate the updates of the current round into a new model version.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			m, err := fsdk.CompleteRound(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Round completed, model version "+strconv.Itoa(m.Version))
			logJSONCmd(*cmd, m)
		},
	}

	cmd.AddCommand(createCmd)
	cmd.AddCommand(viewCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(completeCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}

func experimentForm(cfg *sdk.ExperimentConfig) *huh.Form {
	kOfN := strconv.Itoa(cfg.KOfN)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&cfg.Name),
			huh.NewInput().
				Title("Value type").
				Placeholder("float32[10]").
				Value(&cfg.ValueType).
				Validate(validateValueType),
			huh.NewConfirm().
				Title("Weight updates by number of samples?").
				Value(&cfg.Weighted),
			huh.NewConfirm().
				Title("Return zero when the total weight is zero?").
				Value(&cfg.NoNaNDivision),
			huh.NewInput().
				Title("Round schedule (empty completes rounds manually)").
				Placeholder("@every 10m").
				Value(&cfg.RoundSchedule).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}

					return cron.Validate(s)
				}),
			huh.NewInput().
				Title("Updates per round (0 completes rounds manually)").
				Value(&kOfN).
				Validate(func(s string) error {
					k, err := strconv.Atoi(s)
					if err != nil || k < 0 {
						return errors.New("must be a non-negative integer")
					}
					cfg.KOfN = k

					return nil
				}),
		),
	)

	return form
}

func validateValueType(s string) error {
	if s == "" {
		return errors.New("value type is required")
	}
	_, err := types.Parse(s)

	return err
}
