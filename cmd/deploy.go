package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"minion/internal/docker"
	"minion/internal/executor"
	"minion/internal/server"
	"minion/internal/ship"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build the image, ship it to the VPS and start it behind Traefik",
	Long: `Builds the Dockerfile in the current directory, saves the image to a tar
archive, uploads it to /opt/minion/<app> and starts it with docker compose.
Traffic for every configured hostname is routed to the container over HTTPS.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().String(flagPlatform, docker.DefaultPlatform, "target platform of the image")
	if err := viper.BindPFlag(flagPlatform, deployCmd.Flags().Lookup(flagPlatform)); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	args, err := resolveAppArgs(newResolver())
	if err != nil {
		return err
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	live := stream(cmd)
	d := ship.NewDeployer(
		server.Connector(sshOptions(live)...),
		executor.New(executor.WithDir(dir), executor.WithStream(live)),
		appFs,
		cmd.OutOrStdout(),
		live,
	)
	RootLogs.Debug("Deploying %s", describeArgs(args))
	url, err := d.Deploy(ctx, args, ship.Options{
		Dir:         dir,
		Platform:    viper.GetString(flagPlatform),
		Interactive: interactive(),
	})
	if err != nil {
		return err
	}
	RootLogs.Success("Deployment complete, %s should be live shortly at %s", args.AppName, url)
	return nil
}
