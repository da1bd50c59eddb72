package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// main is the entry point for the CandyShop service.
func main() {
	root := &cobra.Command{
		Use:           "candyshop",
		Short:         "CandyShop registry and Can liquidity-staking vaults",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
		},
	}
	root.AddCommand(newServeCommand(), newResetDBCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("candyshop failed")
		os.Exit(1)
	}
}
