package cmd

import (
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Record the application settings used by deploy",
	Long: `Asks for the VPS host, application name, hostnames, port and volumes and
remembers them in .minion. Nothing is built or sent to the host.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	r := newResolver()
	args, err := resolveAppArgs(r)
	if err != nil {
		return err
	}
	if _, err := resolveEmail(r); err != nil {
		return err
	}
	if err := args.Record(store); err != nil {
		return err
	}
	RootLogs.Success("Saved %s to %s", describeArgs(args), store.Path())
	return nil
}
