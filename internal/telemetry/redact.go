package telemetry

import "regexp"

const redactedPlaceholder = "[REDACTED]"

// secretPatterns match secrets that commonly leak into command output.
// Patterns with two groups keep the first group and redact the second.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|password)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{8,})"?`),
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	regexp.MustCompile(`(?i)(https?://[^:/\s]+:)([^@\s]+)@`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{30,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
}

// Redact replaces secret-looking substrings with [REDACTED].
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			sub := pat.FindStringSubmatch(match)
			if len(sub) >= 3 {
				return sub[1] + redactedPlaceholder + trailing(match, sub[1], sub[2])
			}
			return redactedPlaceholder
		})
	}
	return result
}

// trailing returns what follows the secret group in match, such as the "@"
// of a URL credential.
func trailing(match, prefix, secret string) string {
	for i := len(prefix); i+len(secret) <= len(match); i++ {
		if match[i:i+len(secret)] == secret {
			return match[i+len(secret):]
		}
	}
	return ""
}
