package cmd

import (
	"io"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"minion/internal/config"
	"minion/internal/prompt"
	"minion/internal/sanitizer"
	"minion/internal/server"
)

var asker prompt.Asker = prompt.Terminal{}

func newResolver() *prompt.Resolver {
	return &prompt.Resolver{
		Store:       store,
		Asker:       asker,
		Interactive: interactive(),
	}
}

func interactive() bool {
	return !viper.GetBool(flagYes) && prompt.IsInteractive()
}

func validatePort(v string) error {
	_, err := config.ParsePort(v)
	return err
}

func validateURLs(v string) error {
	urls, err := config.SplitURLs(v)
	if err != nil {
		return err
	}
	for _, u := range urls {
		if err := sanitizer.Hostname(u); err != nil {
			return err
		}
	}
	return nil
}

func validateVolumes(v string) error {
	volumes, err := config.ParseVolumes(v)
	if err != nil {
		return err
	}
	for _, vol := range volumes {
		if err := sanitizer.VolumeName(vol.Local); err != nil {
			return err
		}
		if err := sanitizer.ContainerPath(vol.Container); err != nil {
			return err
		}
	}
	return nil
}

func resolveHost(r *prompt.Resolver) (string, error) {
	return r.Resolve(config.KeyHost, "VPS hostname or IP address", sanitizer.Host)
}

func resolveEmail(r *prompt.Resolver) (string, error) {
	return r.Resolve(config.KeyEmail, "Email address for TLS certificates", sanitizer.Email)
}

// resolveAppArgs fills every application argument from prompts or the store.
func resolveAppArgs(r *prompt.Resolver) (config.Args, error) {
	var args config.Args
	var err error

	if args.Host, err = resolveHost(r); err != nil {
		return args, err
	}
	if args.AppName, err = r.Resolve(config.KeyAppName, "Application name", sanitizer.AppName); err != nil {
		return args, err
	}

	rawURLs, err := r.Resolve(config.KeyAppURL, "Application hostnames (comma separated)", validateURLs)
	if err != nil {
		return args, err
	}
	if args.URLs, err = config.SplitURLs(rawURLs); err != nil {
		return args, err
	}

	rawPort, err := r.Resolve(config.KeyAppPort, "Port the application listens on", validatePort)
	if err != nil {
		return args, err
	}
	if args.Port, err = config.ParsePort(rawPort); err != nil {
		return args, err
	}

	rawVolumes, err := r.Optional(config.KeyVolumes, "Volumes (name:/container/path, comma separated, empty for none)", validateVolumes)
	if err != nil {
		return args, err
	}
	if args.Volumes, err = config.ParseVolumes(rawVolumes); err != nil {
		return args, err
	}
	return args, nil
}

func sshOptions(live io.Writer) []server.Option {
	var opts []server.Option
	if path := viper.GetString(flagKnownHosts); path != "" {
		opts = append(opts, server.WithKnownHosts(path))
	}
	if viper.GetBool(flagInsecureHostKey) {
		opts = append(opts, server.WithInsecureHostKey())
	}
	if live != nil {
		opts = append(opts, server.WithStream(live))
	}
	return opts
}

func describeArgs(args config.Args) string {
	var sb strings.Builder
	sb.WriteString("host=" + args.Host)
	sb.WriteString(" app=" + args.AppName)
	sb.WriteString(" urls=" + strings.Join(args.URLs, ","))
	sb.WriteString(" port=" + strconv.Itoa(args.Port))
	if len(args.Volumes) > 0 {
		sb.WriteString(" volumes=" + config.FormatVolumes(args.Volumes))
	}
	return sb.String()
}
