// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/adminshell/adminshell/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "adminshell",
	Short: "AdminShell is an OIDC protected admin web shell",
	Long: `AdminShell serves an admin web application behind an OpenID Connect
identity provider such as Keycloak. It manages the browser sessions: login,
callback, silent token renewal, role checks and logout.`,
	Args: cobra.OnlyValidArgs,
}

var cfg config.Config

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./etc/", "Directory holding main.toml")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
