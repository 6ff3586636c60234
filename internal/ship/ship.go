// Package ship deploys one application image to a provisioned host and puts
// it behind the proxy.
package ship

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"minion/internal/config"
	"minion/internal/docker"
	"minion/internal/logger"
	"minion/internal/pipeline"
	"minion/internal/sanitizer"
	"minion/internal/server/preparation"
	"minion/internal/templates"
)

const appsRoot = "/opt/minion"

var (
	ShipLogs = logger.PackageLogger("ship", "🚢 SHIP")

	successColor = color.New(color.FgGreen, color.Bold)
	infoColor    = color.New(color.FgCyan, color.Bold)
)

// Options control how the image is produced.
type Options struct {
	// Dir is the build context holding the Dockerfile.
	Dir      string
	Platform string
	// Interactive selects a unique temporary archive instead of <app>.tar.
	Interactive bool
	User        string
}

type Deployer struct {
	connect pipeline.Connector
	local   pipeline.LocalExecutor
	fs      afero.Fs
	out     io.Writer
	stream  io.Writer
}

// NewDeployer wires a Deployer. out receives progress lines, stream the
// command echo in verbose mode; both may be nil.
func NewDeployer(connect pipeline.Connector, local pipeline.LocalExecutor, fs afero.Fs, out, stream io.Writer) *Deployer {
	if out == nil {
		out = io.Discard
	}
	return &Deployer{connect: connect, local: local, fs: fs, out: out, stream: stream}
}

// AppDir is where an application's compose file, archive and volumes live.
func AppDir(app string) string {
	return path.Join(appsRoot, app)
}

// HostRules joins one Host(`...`) matcher per hostname with ||.
func HostRules(hosts []string) string {
	rules := make([]string, len(hosts))
	for i, h := range hosts {
		rules[i] = "Host(`" + h + "`)"
	}
	return strings.Join(rules, " || ")
}

// VolumesSection renders the compose volumes block for the service, or ""
// when there is nothing to mount.
func VolumesSection(app string, volumes []config.VolumeMapping) string {
	if len(volumes) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("    volumes:")
	for _, v := range volumes {
		fmt.Fprintf(&sb, "\n      - %s:%s", path.Join(AppDir(app), "volumes", v.Local), v.Container)
	}
	return sb.String()
}

// ComposeFile renders and validates the application's compose document.
func ComposeFile(args config.Args) (string, error) {
	doc, err := templates.RenderStrict(templates.MustGet(templates.AppCompose), templates.Bindings{
		"app_name":        args.AppName,
		"host_rules":      HostRules(args.URLs),
		"port":            strconv.Itoa(args.Port),
		"volumes_section": VolumesSection(args.AppName, args.Volumes),
	})
	if err != nil {
		return "", err
	}
	if err := templates.ValidateYAML(doc); err != nil {
		return "", err
	}
	return doc, nil
}

// Validate checks every argument before any local or remote work starts.
func Validate(args config.Args, opts Options) error {
	if err := sanitizer.Host(args.Host); err != nil {
		return err
	}
	if err := sanitizer.AppName(args.AppName); err != nil {
		return err
	}
	if err := docker.ValidateImageName(docker.ImageName(args.AppName)); err != nil {
		return err
	}
	if len(args.URLs) == 0 {
		return config.ErrNoURL
	}
	for _, u := range args.URLs {
		if err := sanitizer.Hostname(u); err != nil {
			return err
		}
	}
	if args.Port < 1 || args.Port > 65535 {
		return fmt.Errorf("%w %d: out of range", config.ErrInvalidPort, args.Port)
	}
	for _, v := range args.Volumes {
		if err := sanitizer.VolumeName(v.Local); err != nil {
			return fmt.Errorf("%w %s: %w", config.ErrInvalidVolume, v, err)
		}
		if err := sanitizer.ContainerPath(v.Container); err != nil {
			return fmt.Errorf("%w %s: %w", config.ErrInvalidVolume, v, err)
		}
	}
	if opts.Platform != "" {
		if err := sanitizer.Platform(opts.Platform); err != nil {
			return err
		}
	}
	return nil
}

// Deploy builds the image, ships it and starts the application. It returns
// the public URL of the first hostname. Reaching it is not verified.
func (d *Deployer) Deploy(ctx context.Context, args config.Args, opts Options) (string, error) {
	if opts.User == "" {
		opts.User = preparation.DefaultUser
	}
	if err := Validate(args, opts); err != nil {
		return "", err
	}
	if err := docker.RequireDockerfile(d.fs, opts.Dir); err != nil {
		return "", err
	}
	compose, err := ComposeFile(args)
	if err != nil {
		return "", err
	}

	archive, err := docker.ArchivePath(d.fs, opts.Dir, args.AppName, opts.Interactive)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := d.fs.Remove(archive); err != nil {
			ShipLogs.Debug("could not remove %s: %v", archive, err)
		}
	}()

	image := docker.ImageName(args.AppName)
	infoColor.Fprintf(d.out, "Building %s...\n", image)
	local := &pipeline.Runner{Local: d.local, Log: ShipLogs, Stream: d.stream}
	if _, err := local.Steps(ctx,
		docker.Build(docker.BuildOptions{ImageName: image, Platform: opts.Platform}),
		docker.Save(image, archive),
	); err != nil {
		return "", err
	}

	steps, err := remoteSteps(args, opts.User, archive, compose)
	if err != nil {
		return "", err
	}

	infoColor.Fprintf(d.out, "Deploying %s to %s...\n", args.AppName, args.Host)
	sess, err := d.connect(ctx, args.Host, opts.User, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()

	remote := &pipeline.Runner{Remote: sess, Log: ShipLogs, Stream: d.stream}
	if _, err := remote.Steps(ctx, steps...); err != nil {
		return "", err
	}

	url := "https://" + args.URLs[0]
	successColor.Fprintf(d.out, "✓ %s deployed: %s\n", args.AppName, url)
	return url, nil
}

func remoteSteps(args config.Args, user, archive, compose string) ([]pipeline.Step, error) {
	app := args.AppName
	dir := AppDir(app)
	remoteArchive := path.Join(dir, app+".tar")

	dirs := []string{dir, path.Join(dir, "volumes")}
	for _, v := range args.Volumes {
		dirs = append(dirs, path.Join(dir, "volumes", v.Local))
	}

	writeCompose, err := pipeline.WriteFile("Writing compose file", path.Join(dir, "docker-compose.yml"), compose)
	if err != nil {
		return nil, err
	}

	return []pipeline.Step{
		pipeline.Remote("Creating application directories", "sudo mkdir -p "+sanitizer.QuoteAll(dirs...)),
		pipeline.Remote("Setting application directory owner",
			fmt.Sprintf("sudo chown -R %[1]s:%[1]s %[2]s", user, sanitizer.Quote(dir))),
		writeCompose,
		pipeline.Upload("Uploading image archive", archive, remoteArchive),
		pipeline.Remote("Loading image", fmt.Sprintf("cd %s && docker load -i %s", sanitizer.Quote(dir), sanitizer.Quote(app+".tar"))),
		pipeline.Remote("Removing image archive", "rm "+sanitizer.Quote(remoteArchive)),
		pipeline.Remote("Starting application", fmt.Sprintf("cd %s && docker compose up -d 2>&1", sanitizer.Quote(dir))),
	}, nil
}
