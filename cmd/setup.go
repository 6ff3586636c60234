package cmd

import (
	"github.com/spf13/cobra"

	"minion/internal/executor"
	"minion/internal/server"
	"minion/internal/server/preparation"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Prepare the VPS: deploy user, Docker and Traefik",
	Long: `Provisions the host in order:
1. Check that docker is installed locally
2. As root, create the minion user, copy root's authorized keys and disable
   root and password SSH logins
3. As minion, install Docker unless it is present
4. Lay out /opt/traefik and start Traefik with Let's Encrypt

A rejected root login is expected on hosts that were already set up.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().Bool("no-sudo", false, "do not grant the minion user passwordless sudo")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r := newResolver()

	host, err := resolveHost(r)
	if err != nil {
		return err
	}
	email, err := resolveEmail(r)
	if err != nil {
		return err
	}
	password := r.Secret("Root password (empty to use SSH keys)")
	noSudo, err := cmd.Flags().GetBool("no-sudo")
	if err != nil {
		return err
	}

	live := stream(cmd)
	pm := preparation.NewPreparationManager(
		server.Connector(sshOptions(live)...),
		executor.New(executor.WithStream(live)),
		live,
	)
	return RootLogs.Timed("setup of "+host, func() error {
		return pm.Provision(ctx, preparation.Options{
			Host:          host,
			Email:         email,
			AdminPassword: password,
			GrantSudo:     !noSudo,
		})
	})
}
