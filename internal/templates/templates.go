// Package templates renders the documents written to the remote host.
//
// Placeholders use the {{name}} form. Rendering is a single substitution pass:
// bound values are inserted as-is and never scanned again, and placeholders
// without a binding are left in the output verbatim.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/valyala/fasttemplate"
	"gopkg.in/yaml.v3"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

const (
	TraefikConfig  = "traefik.yml"
	TraefikCompose = "docker-compose.traefik.yml"
	AppCompose     = "docker-compose.app.yml"
)

var (
	ErrUnboundPlaceholder = errors.New("unbound placeholder")
	ErrInvalidDocument    = errors.New("rendered document is not valid YAML")
	ErrUnknownTemplate    = errors.New("unknown template")
)

//go:embed assets/*.yml
var assets embed.FS

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Bindings maps placeholder names to their replacement text.
type Bindings map[string]string

// Get returns the embedded template with the given name.
func Get(name string) (string, error) {
	data, err := assets.ReadFile("assets/" + name)
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrUnknownTemplate, name)
	}
	return string(data), nil
}

// MustGet is Get for names known at compile time.
func MustGet(name string) string {
	text, err := Get(name)
	if err != nil {
		panic(err)
	}
	return text
}

func Render(text string, b Bindings) string {
	return fasttemplate.ExecuteFuncString(text, startTag, endTag, func(w io.Writer, tag string) (int, error) {
		if v, ok := b[tag]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte(startTag + tag + endTag))
	})
}

// Unbound lists the sorted, unique placeholder names present in text.
func Unbound(text string) []string {
	seen := map[string]struct{}{}
	fasttemplate.ExecuteFuncString(text, startTag, endTag, func(w io.Writer, tag string) (int, error) {
		if nameRe.MatchString(tag) {
			seen[tag] = struct{}{}
		}
		return 0, nil
	})

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RenderStrict renders text and fails if any placeholder in the template has
// no binding. Values that happen to contain {{...}} are not inspected.
func RenderStrict(text string, b Bindings) (string, error) {
	var missing []string
	for _, name := range Unbound(text) {
		if _, ok := b[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnboundPlaceholder, strings.Join(missing, ", "))
	}
	return Render(text, b), nil
}

// ValidateYAML checks that every document in doc parses.
func ValidateYAML(doc string) error {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(doc)))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}
}
