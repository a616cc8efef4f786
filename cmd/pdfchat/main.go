package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type globalFlags struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "pdfchat",
		Short:         "Chat with a PDF",
		Long:          "pdfchat indexes an uploaded PDF and answers questions about it with a hosted chat model, in the browser or the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to YAML config file (default ./config.yaml or ~/.config/pdfchat/config.yaml)")
	cmd.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", []string{".env"}, ".env files to load before reading the config")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newChatCmd(g))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pdfchat %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
