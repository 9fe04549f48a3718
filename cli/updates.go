package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/absmach/fedagg/pkg/sdk"
	"github.com/spf13/cobra"
)

var errInvalidSamples = errors.New("num_samples must be a non-negative integer")

func NewUpdatesCmd() *cobra.Command {
	var (
		envelope bool
		encoding string
	)

	cmd := &cobra.Command{
		Use:   "updates [submit]",
		Short: "Client updates",
		Long:  `Submit client updates to an experiment.`,
	}

	submitCmd := &cobra.Command{
		Use:   "submit <experiment_id> <client_id> <num_samples> <value>",
		Short: "Submit update",
		Long: `Submit a client update for the current round of an experiment.

The value is a JSON literal matching the experiment value type. With
--envelope it is an encoded value produced by "fedagg-cli tensor encode".

Examples:
  fedagg-cli updates submit <experiment_id> client-1 120 '[0.1, 0.2]'
  fedagg-cli updates submit <experiment_id> client-1 120 0a3e0a3c... --envelope`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 4 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			samples, err := strconv.Atoi(args[2])
			if err != nil || samples < 0 {
				logErrorCmd(*cmd, errInvalidSamples)

				return
			}
			update := sdk.Update{
				ClientID:   args[1],
				NumSamples: samples,
			}

			var status sdk.RoundStatus
			if envelope {
				update.Envelope, err = decodeBytes(args[3], encoding)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				status, err = fsdk.SubmitUpdateEnvelope(args[0], update)
			} else {
				update.Value, err = parseLiteral(args[3])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				status, err = fsdk.SubmitUpdate(args[0], update)
			}
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, status)
		},
	}

	submitCmd.Flags().BoolVarP(&envelope, "envelope", "e", false, "Value is an encoded envelope instead of a JSON literal")
	submitCmd.Flags().StringVar(&encoding, "encoding", hexEncoding, "Envelope encoding: hex or base64")

	cmd.AddCommand(submitCmd)

	return cmd
}

func parseLiteral(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var lit any
	if err := dec.Decode(&lit); err != nil {
		return nil, err
	}

	return lit, nil
}
