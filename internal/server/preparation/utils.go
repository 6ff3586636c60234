package preparation

import (
	"io"
	"strings"

	"github.com/fatih/color"
)

// logToStream writes colored messages to the output stream
func logToStream(stream io.Writer, message string, colorAttr color.Attribute) {
	if stream != nil {
		c := color.New(colorAttr)
		c.Fprintln(stream, message)
	}
}

// hasField reports whether want is one of the whitespace separated words
// of output.
func hasField(output, want string) bool {
	for _, f := range strings.Fields(output) {
		if f == want {
			return true
		}
	}
	return false
}
