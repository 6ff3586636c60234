// Package prompt resolves command arguments from the operator, falling back
// to values remembered in the config store.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Songmu/prompter"
	"golang.org/x/term"

	"minion/internal/config"
	"minion/internal/logger"
)

const maxAttempts = 3

var plog = logger.PackageLogger("prompt", "💬 PROMPT")

// ErrMissing is returned in unattended mode when no value was stored.
var ErrMissing = errors.New("missing value")

// Asker reads answers from the operator.
type Asker interface {
	Ask(message, defaultAnswer string) string
	Secret(message string) string
}

// Terminal asks on the controlling terminal.
type Terminal struct{}

func (Terminal) Ask(message, defaultAnswer string) string {
	return prompter.Prompt(message, defaultAnswer)
}

func (Terminal) Secret(message string) string {
	return prompter.Password(message)
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Resolver fills arguments. Interactive resolvers prompt with the stored
// value as the default; unattended resolvers use stored values only.
type Resolver struct {
	Store       *config.Store
	Asker       Asker
	Interactive bool
}

// Resolve returns a validated value for key and records it in the store.
func (r *Resolver) Resolve(key, message string, validate func(string) error) (string, error) {
	stored, _ := r.Store.Get(key)

	if !r.Interactive {
		if stored == "" {
			return "", fmt.Errorf("%w: %s is not set, run interactively or add it to %s", ErrMissing, key, r.Store.Path())
		}
		if err := validate(stored); err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		return stored, nil
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		value := strings.TrimSpace(r.Asker.Ask(message, stored))
		if err = validate(value); err == nil {
			if err := r.Store.Set(key, value); err != nil {
				return "", err
			}
			return value, nil
		}
		plog.Warn("%v", err)
	}
	return "", fmt.Errorf("%s: %w", key, err)
}

// Optional returns the stored value or, when interactive, whatever the
// operator typed, including nothing.
func (r *Resolver) Optional(key, message string, validate func(string) error) (string, error) {
	stored, _ := r.Store.Get(key)
	if !r.Interactive {
		if stored == "" {
			return "", nil
		}
		if err := validate(stored); err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		return stored, nil
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		value := strings.TrimSpace(r.Asker.Ask(message, stored))
		if value == "" {
			return "", r.Store.Set(key, "")
		}
		if err = validate(value); err == nil {
			if err := r.Store.Set(key, value); err != nil {
				return "", err
			}
			return value, nil
		}
		plog.Warn("%v", err)
	}
	return "", fmt.Errorf("%s: %w", key, err)
}

// Secret asks for a value that is never stored. Unattended resolvers
// return "".
func (r *Resolver) Secret(message string) string {
	if !r.Interactive {
		return ""
	}
	return r.Asker.Secret(message)
}
