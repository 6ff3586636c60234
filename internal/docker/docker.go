// Package docker builds the local steps that produce and package the
// application image.
package docker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"minion/internal/logger"
	"minion/internal/pipeline"
)

const (
	DockerfileName  = "Dockerfile"
	ImagePrefix     = "minion_"
	DefaultPlatform = "linux/amd64"
)

var (
	ErrInvalidImageName   = errors.New("invalid Docker image name")
	ErrDockerfileNotFound = errors.New("dockerfile not found")
)

var dockerlogger = logger.PackageLogger("docker", "🐳 DOCKER")

var (
	validImageName = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*$`)
	validTag       = regexp.MustCompile(`^[\w][\w.-]{0,127}$`)
)

// ImageName returns the local image tag for an application.
func ImageName(app string) string {
	return ImagePrefix + app
}

// ValidateImageName checks name against Docker's reference grammar.
func ValidateImageName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: image name cannot be empty", ErrInvalidImageName)
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: exceeds 255 characters", ErrInvalidImageName)
	}

	repo, tag, hasTag := strings.Cut(name, ":")
	if !validImageName.MatchString(repo) {
		return fmt.Errorf("%w: invalid repository name %q", ErrInvalidImageName, repo)
	}
	if hasTag && !validTag.MatchString(tag) {
		return fmt.Errorf("%w: invalid tag format %q", ErrInvalidImageName, tag)
	}
	return nil
}

// DockerfileExists checks if a Dockerfile exists in the specified directory
func DockerfileExists(fs afero.Fs, dir string) (bool, error) {
	path := filepath.Join(dir, DockerfileName)
	dockerlogger.Debug("Checking for Dockerfile at: %s", path)

	stat, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("error checking Dockerfile existence: %w", err)
	}
	if stat.IsDir() {
		return false, fmt.Errorf("dockerfile path %s is a directory", path)
	}
	return true, nil
}

// RequireDockerfile fails with ErrDockerfileNotFound unless dir holds one.
func RequireDockerfile(fs afero.Fs, dir string) error {
	ok, err := DockerfileExists(fs, dir)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w in %s", ErrDockerfileNotFound, dir)
	}
	return nil
}

type BuildOptions struct {
	ImageName string
	Platform  string
}

// BuildArgs returns the arguments of `docker build` for opts.
func BuildArgs(opts BuildOptions) []string {
	platform := opts.Platform
	if platform == "" {
		platform = DefaultPlatform
	}
	return []string{"build", "-t", opts.ImageName, ".", "--platform=" + platform}
}

// CheckInstalled verifies the docker CLI runs on this machine.
func CheckInstalled() pipeline.Step {
	return pipeline.Local("Checking local Docker installation", "docker", "--version")
}

// Build builds the image from the Dockerfile in the working directory.
func Build(opts BuildOptions) pipeline.Step {
	return pipeline.Local("Building image "+opts.ImageName, "docker", BuildArgs(opts)...)
}

// Save writes image to a tar archive.
func Save(image, archive string) pipeline.Step {
	return pipeline.Local("Saving image to "+filepath.Base(archive), "docker", "save", "-o", archive, image)
}

// ArchivePath picks where the image archive is written. Interactive runs get
// a unique temporary file; unattended runs use <app>.tar in dir.
func ArchivePath(fs afero.Fs, dir, app string, interactive bool) (string, error) {
	if !interactive {
		return filepath.Join(dir, app+".tar"), nil
	}
	f, err := afero.TempFile(fs, "", "minion_*.tar")
	if err != nil {
		return "", fmt.Errorf("create image archive: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("create image archive: %w", err)
	}
	return name, nil
}
