package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// configPath is the directory holding config.yaml and the server catalogue.
// Empty means the per-user default.
var configPath string

// rootCmd represents the base command for the toolgate application.
var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Connect application users to MCP tool servers",
	Long: `toolgate manages connections from your application's users to
third-party MCP tool servers, handling OAuth authorization, encrypted
token storage, and transparent token refresh.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. It is called from the
// main package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "toolgate version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "",
		"directory holding config.yaml and the server catalogue (default is $HOME/.config/toolgate)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServersCmd())
}
