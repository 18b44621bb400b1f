package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/blnkfinance/grantflow/config"
	"github.com/spf13/cobra"
)

func configCommands() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration with secrets redacted",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			out := cfg.Redacted()
			if showSecrets {
				out = *cfg
			}
			data, err := json.MarshalIndent(out, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print keys and credentials unmasked")
	return cmd
}
