package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"minion/internal/config"
	"minion/internal/failfast"
	"minion/internal/logger"
)

const (
	flagConfig          = "config"
	flagVerbose         = "verbose"
	flagYes             = "yes"
	flagPlatform        = "platform"
	flagKnownHosts      = "known-hosts"
	flagInsecureHostKey = "insecure-host-key"
)

var (
	RootLogs = logger.PackageLogger("minion", "🤖 MINION")

	appFs afero.Fs = afero.NewOsFs()
	store *config.Store
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "minion",
	Short: "Provision a VPS and deploy one containerized app behind Traefik",
	Long: `minion prepares a fresh VPS for deployments and ships your application to it.

  minion setup    create the deploy user, install Docker and start Traefik
  minion init     record the application settings in .minion
  minion deploy   build the image locally, upload it and start it with TLS

Answers are remembered in .minion and offered as defaults next time.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command. The config store is saved once, whether
// or not the command succeeded.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if store != nil {
		failfast.Failfast(store.Save(), failfast.Warn, "Could not save "+store.Path())
	}
	failfast.Failfast(err, failfast.Error, "minion failed")
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, config.DefaultFile, "file where answers are remembered")
	flags.BoolP(flagVerbose, "v", false, "debug logging and live command output")
	flags.BoolP(flagYes, "y", false, "do not prompt, use remembered values")
	flags.String(flagKnownHosts, "", "known_hosts file used to verify the host key (default ~/.ssh/known_hosts)")
	flags.Bool(flagInsecureHostKey, false, "accept any host key")

	for _, name := range []string{flagConfig, flagVerbose, flagYes, flagKnownHosts, flagInsecureHostKey} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("MINION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if viper.GetBool(flagVerbose) {
		logger.SetLevelAll(logger.LevelDebug)
	}

	s, err := config.Load(appFs, viper.GetString(flagConfig))
	if err != nil {
		return err
	}
	store = s
	RootLogs.Debug("Using %s", store.Path())
	return nil
}

// stream returns where live command output goes: the command's stdout in
// verbose mode, nowhere otherwise.
func stream(cmd *cobra.Command) io.Writer {
	if viper.GetBool(flagVerbose) {
		return cmd.OutOrStdout()
	}
	return nil
}
