// Package sanitizer validates operator input before it is interpolated into
// remote shell commands or rendered documents, and quotes what remains.
package sanitizer

import (
	"errors"
	"net"
	"net/mail"
	"path"
	"regexp"
	"strings"

	"github.com/alessio/shellescape"
)

var ErrInvalid = errors.New("invalid input")

var (
	appNameRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	labelRe    = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
	volumeRe   = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	platformRe = regexp.MustCompile(`^[a-z0-9]+/[a-z0-9_]+(/[a-z0-9]+)?$`)
	// container paths end up inside a YAML flow scalar and a shell word
	containerPathRe = regexp.MustCompile(`^/[A-Za-z0-9._/@+-]*$`)
)

// SecurityError names the field and value that failed validation.
type SecurityError struct {
	Field   string
	Value   string
	Message string
}

func (e *SecurityError) Error() string {
	return "invalid " + e.Field + " " + quoteForError(e.Value) + ": " + e.Message
}

func (e *SecurityError) Unwrap() error { return ErrInvalid }

// IsSecurityError checks if an error is a SecurityError
func IsSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}

func invalid(field, value, msg string) error {
	return &SecurityError{Field: field, Value: value, Message: msg}
}

// AppName accepts lowercase names usable as an image tag, a compose service
// and a directory name at once.
func AppName(name string) error {
	if len(name) > 63 {
		return invalid("app name", name, "longer than 63 characters")
	}
	if !appNameRe.MatchString(name) {
		return invalid("app name", name, "must match [a-z0-9][a-z0-9_-]*")
	}
	return nil
}

// Hostname accepts a DNS name such as app.example.com.
func Hostname(host string) error {
	if host == "" || len(host) > 253 {
		return invalid("hostname", host, "must be 1-253 characters")
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if len(label) > 63 || !labelRe.MatchString(label) {
			return invalid("hostname", host, "bad label "+quoteForError(label))
		}
	}
	return nil
}

// Host accepts the SSH target: an IP address or hostname, optionally with a
// port ("vps.example.com:2222", "[::1]:2222").
func Host(target string) error {
	h := target
	if host, port, err := net.SplitHostPort(target); err == nil {
		if port == "" {
			return invalid("host", target, "empty port")
		}
		h = host
	}
	if net.ParseIP(h) != nil {
		return nil
	}
	if err := Hostname(h); err != nil {
		return invalid("host", target, "neither an IP address nor a hostname")
	}
	return nil
}

// Email accepts a bare address for the ACME registration.
func Email(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || parsed.Name != "" {
		return invalid("email", addr, "must be a bare address like ops@example.com")
	}
	if strings.ContainsAny(addr, "'\"`$\\ ") {
		return invalid("email", addr, "contains shell metacharacters")
	}
	return nil
}

// Platform accepts an OS/arch[/variant] pair such as linux/amd64.
func Platform(p string) error {
	if !platformRe.MatchString(p) {
		return invalid("platform", p, "expected os/arch, e.g. linux/amd64")
	}
	return nil
}

// VolumeName accepts the host-side segment of a volume mapping. It becomes a
// directory under the application's volumes folder.
func VolumeName(name string) error {
	if name == "." || name == ".." || !volumeRe.MatchString(name) {
		return invalid("volume", name, "must be a single path segment of [A-Za-z0-9._-]")
	}
	return nil
}

// ContainerPath accepts the container-side path of a volume mapping.
func ContainerPath(p string) error {
	if !containerPathRe.MatchString(p) {
		return invalid("container path", p, "must be absolute and contain no spaces or quotes")
	}
	if path.Clean(p) != strings.TrimSuffix(p, "/") && p != "/" {
		return invalid("container path", p, "must be clean")
	}
	return nil
}

// Quote returns a shell-escaped version of s.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// QuoteAll quotes each argument and joins them with spaces.
func QuoteAll(args ...string) string {
	return shellescape.QuoteCommand(args)
}

func quoteForError(s string) string {
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return `"` + s + `"`
}
