package main

import (
	"log"

	"github.com/absmach/fedagg/cli"
	"github.com/absmach/fedagg/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	var (
		coordinatorURL  = cli.DefCoordinatorURL
		tlsVerification = cli.DefTLSVerification
	)

	rootCmd := &cobra.Command{
		Use:   "fedagg-cli",
		Short: "FedAgg CLI",
		Long:  `FedAgg CLI is a command line interface for running federated aggregation experiments.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: tlsVerification,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "coordinator-url", "c", coordinatorURL, "Coordinator URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerification, "tls-verification", tlsVerification, "Verify the coordinator TLS certificate")

	rootCmd.AddCommand(cli.NewExperimentsCmd())
	rootCmd.AddCommand(cli.NewUpdatesCmd())
	rootCmd.AddCommand(cli.NewModelsCmd())
	rootCmd.AddCommand(cli.NewTensorCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
