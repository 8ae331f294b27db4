package health

import "regexp"

type redaction struct {
	pattern *regexp.Regexp
	repl    string
}

// Applied in order. URLs go first since they contain paths, addresses
// and ports.
var redactions = []redaction{
	{regexp.MustCompile(`(?:https?|wss?|nats|tls)://\S+`), "[URL]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`/[\w/.-]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
	{regexp.MustCompile(`(?i)(?:password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`), "[REDACTED]"},
}

// Redact strips URLs, file paths, addresses, ports and inline credentials
// from an error message so it can be served on an unauthenticated
// health endpoint.
func Redact(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.repl)
	}
	return msg
}
