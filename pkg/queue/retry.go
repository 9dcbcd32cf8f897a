package queue

import "strings"

// Failure classification after an attempt fails. Auth and quota failures
// never heal on retry, so they short-circuit even when the message also
// carries a retryable token. Transient transport and output-shape failures
// earn another attempt; anything unrecognized is treated as permanent so a
// poison job cannot loop forever.
var (
	nonRetryableTokens = []string{"insufficient_quota", "401", "403"}
	retryableTokens    = []string{"timeout", "json", "validation"}
)

// IsRetryableError reports whether a failed attempt with the given error
// message should be offered to another worker. Matching is case-insensitive
// substring search; non-retryable tokens win over retryable ones.
func IsRetryableError(message string) bool {
	lowered := strings.ToLower(message)
	for _, token := range nonRetryableTokens {
		if strings.Contains(lowered, token) {
			return false
		}
	}
	for _, token := range retryableTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}
