package preparation

import (
	"fmt"
	"strings"

	"minion/internal/pipeline"
	"minion/internal/templates"
)

const (
	DefaultUser       = "minion"
	DefaultAdminUser  = "root"
	ProxyNetwork      = "traefik_proxy"
	traefikDir        = "/opt/traefik"
	traefikConfigPath = traefikDir + "/config/traefik.yml"
	traefikCompose    = traefikDir + "/docker-compose.yml"
	acmeStore         = traefikDir + "/data/acme.json"
	dockerScript      = "/tmp/get-docker.sh"
)

// userSteps run as the privileged user. They create the deploy user, hand
// it the privileged user's authorized keys and lock down sshd.
func userSteps(user string, grantSudo bool) []pipeline.Step {
	home := "/home/" + user
	steps := []pipeline.Step{
		pipeline.Remote("Creating user "+user,
			fmt.Sprintf("id -u %[1]s >/dev/null 2>&1 || useradd -m -s /bin/bash %[1]s", user)),
		pipeline.Remote("Creating SSH directory", fmt.Sprintf("mkdir -p %s/.ssh", home)),
		pipeline.Remote("Copying authorized keys", fmt.Sprintf("cp ~/.ssh/authorized_keys %s/.ssh/authorized_keys", home)),
		pipeline.Remote("Setting SSH directory owner", fmt.Sprintf("chown -R %[1]s:%[1]s %[2]s/.ssh", user, home)),
		pipeline.Remote("Restricting SSH directory", fmt.Sprintf("chmod 700 %s/.ssh", home)),
		pipeline.Remote("Restricting authorized keys", fmt.Sprintf("chmod 600 %s/.ssh/authorized_keys", home)),
	}
	if grantSudo {
		sudoers := "/etc/sudoers.d/" + user
		steps = append(steps,
			pipeline.Remote("Granting passwordless sudo",
				fmt.Sprintf("echo '%s ALL=(ALL) NOPASSWD:ALL' > %s", user, sudoers)),
			pipeline.Remote("Restricting sudoers drop-in", "chmod 440 "+sudoers),
		)
	}
	return append(steps,
		pipeline.Remote("Disabling root login",
			`sed -i -E 's/^#?[[:space:]]*PermitRootLogin[[:space:]].*/PermitRootLogin no/' /etc/ssh/sshd_config`),
		pipeline.Remote("Disabling password authentication",
			`sed -i -E 's/^#?[[:space:]]*PasswordAuthentication[[:space:]].*/PasswordAuthentication no/' /etc/ssh/sshd_config`),
		pipeline.Remote("Restarting SSH service", "systemctl restart ssh || systemctl restart sshd"),
	)
}

// dockerStage installs Docker unless it is already on the PATH. Joining the
// docker group only takes effect for new logins.
func dockerStage() pipeline.Stage {
	return pipeline.Stage{
		Name:   "Docker installation",
		SkipIf: "command -v docker",
		Steps: []pipeline.Step{
			pipeline.Remote("Downloading Docker install script", "curl -fsSL https://get.docker.com -o "+dockerScript),
			pipeline.Remote("Running Docker install script", "sudo DEBIAN_FRONTEND=noninteractive sh "+dockerScript+" 2>&1"),
			pipeline.Remote("Removing Docker install script", "rm -f "+dockerScript).Optional(),
			pipeline.Remote("Adding user to docker group", "sudo usermod -aG docker $USER").Invalidating(),
		},
	}
}

func verifyDockerSteps() []pipeline.Step {
	return []pipeline.Step{
		pipeline.Remote("Checking Docker version", "docker --version"),
	}
}

func verifyAccessSteps() []pipeline.Step {
	return []pipeline.Step{
		pipeline.Remote("Checking Docker Compose", "docker compose version"),
		pipeline.Remote("Checking docker group membership", "groups").Expecting(func(output string) error {
			if !hasField(output, "docker") {
				return ErrGroupPending
			}
			return nil
		}),
	}
}

// traefikSteps lay out /opt/traefik, write both documents and start the proxy.
func traefikSteps(email string) ([]pipeline.Step, error) {
	config, err := templates.RenderStrict(templates.MustGet(templates.TraefikConfig), templates.Bindings{"email": email})
	if err != nil {
		return nil, err
	}
	compose := templates.MustGet(templates.TraefikCompose)
	for _, doc := range []string{config, compose} {
		if err := templates.ValidateYAML(doc); err != nil {
			return nil, err
		}
	}

	writeConfig, err := pipeline.WriteFile("Writing Traefik configuration", traefikConfigPath, config)
	if err != nil {
		return nil, err
	}
	writeCompose, err := pipeline.WriteFile("Writing Traefik compose file", traefikCompose, compose)
	if err != nil {
		return nil, err
	}

	return []pipeline.Step{
		pipeline.Remote("Creating Traefik directories",
			fmt.Sprintf("sudo mkdir -p %[1]s/config/dynamic %[1]s/data", traefikDir)),
		pipeline.Remote("Creating ACME store", "sudo touch "+acmeStore),
		pipeline.Remote("Restricting ACME store", "sudo chmod 600 "+acmeStore),
		pipeline.Remote("Creating proxy network",
			fmt.Sprintf("docker network inspect %[1]s >/dev/null 2>&1 || docker network create %[1]s", ProxyNetwork)).Optional(),
		writeConfig,
		writeCompose,
		pipeline.Remote("Checking configuration files", strings.Join([]string{"ls -l", traefikConfigPath, traefikCompose}, " ")),
		pipeline.Remote("Starting Traefik", fmt.Sprintf("cd %s && docker compose up -d 2>&1", traefikDir)),
	}, nil
}

func proxyRunningStep() pipeline.Step {
	return pipeline.Remote("Checking Traefik status", "docker inspect -f '{{.State.Status}}' traefik").
		Expecting(func(output string) error {
			if status := strings.TrimSpace(output); status != "running" {
				return fmt.Errorf("%w: status %q", ErrProxyNotRunning, status)
			}
			return nil
		})
}
