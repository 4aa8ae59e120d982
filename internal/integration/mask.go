package integration

import "strings"

// Mask replaces sensitive values before anything reaches a log line:
// the Authorization header and any top-level "apiKey" field in a
// JSON-serializable body. Generalizes the single-key masking the
// teacher's ai/model package applied to one stored credential.
func Mask(headers map[string]string, body map[string]any) (map[string]string, map[string]any) {
	maskedHeaders := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "Authorization") {
			maskedHeaders[k] = maskValue(v)
			continue
		}
		maskedHeaders[k] = v
	}

	var maskedBody map[string]any
	if body != nil {
		maskedBody = make(map[string]any, len(body))
		for k, v := range body {
			if strings.EqualFold(k, "apiKey") {
				if s, ok := v.(string); ok {
					maskedBody[k] = maskValue(s)
					continue
				}
			}
			maskedBody[k] = v
		}
	}
	return maskedHeaders, maskedBody
}

// maskValue reproduces the teacher's apiKey masking style: short
// values become all asterisks, longer ones keep a short recognizable
// prefix/suffix around a run of asterisks.
func maskValue(v string) string {
	if v == "" {
		return "<empty>"
	}
	if len(v) <= 10 {
		return strings.Repeat("*", len(v))
	}
	return v[:2] + strings.Repeat("*", len(v)-4) + v[len(v)-2:]
}

// TruncateBody truncates a body string to a fixed prefix for logging,
// per spec §3 invariant 7 ("request/response bodies are truncated to
// a fixed prefix").
func TruncateBody(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
