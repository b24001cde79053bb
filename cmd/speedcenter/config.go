package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Loads the configuration files and environment overrides and prints the result as YAML.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := cfg.Marshal()
		if err != nil {
			return err
		}

		_, err = fmt.Fprint(os.Stdout, string(data))

		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
