package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adminshell/adminshell/internal/config"
)

func init() { //nolint: gochecknoinits
	configCmd.Flags().StringVarP(&dumpFormat, "format", "f", "toml", "Output format: toml, json or yaml")

	rootCmd.AddCommand(configCmd)
}

var (
	dumpFormat string

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration, secrets omitted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.ReadConfig(configPath)
			if err != nil {
				return err
			}

			out, err := config.Dump(&c, dumpFormat)
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), out)

			return err
		},
	}
)
