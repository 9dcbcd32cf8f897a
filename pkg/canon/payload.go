package canon

import (
	"strings"
	"time"
)

// PayloadString returns the first non-empty string field among keys,
// whitespace-trimmed. Upstream payloads name the same field differently
// across feeds ("headline" vs "title"), so callers list the accepted keys.
func PayloadString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// PayloadTime extracts the publication instant of an upstream payload,
// trying "datetime" (epoch seconds on the wire) before "published_at".
func PayloadTime(payload map[string]any) (time.Time, bool) {
	if ts, ok := ParseTimestamp(payload["datetime"]); ok {
		return ts, true
	}
	return ParseTimestamp(payload["published_at"])
}

// CleanSymbols uppercases, trims, and deduplicates ticker symbols,
// preserving first-seen order. Blank entries are dropped.
func CleanSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	var out []string
	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	return out
}
