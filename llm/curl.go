// Reproducible request rendering for diagnostics.
package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Header names whose values must never appear in diagnostics.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
}

// renderCurl builds a command-line equivalent of a request so a failed call
// can be reproduced by hand. Credential header values are redacted.
func renderCurl(method, url string, headers map[string]string, body []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s %s", method, shellQuote(url))

	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := headers[key]
		if sensitiveHeaders[strings.ToLower(key)] {
			value = "REDACTED"
		}
		fmt.Fprintf(&b, " \\\n  -H %s", shellQuote(key+": "+value))
	}

	if len(body) > 0 {
		fmt.Fprintf(&b, " \\\n  -d %s", shellQuote(string(body)))
	}
	return b.String()
}

// shellQuote single-quotes a string for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
