package authclient

import (
	"encoding/json"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a 401/403 body is read for classification.
const maxErrorBody = 64 << 10

// DefaultExpiryPhrases mark a 403 as a credential problem rather than a
// permission problem. Matching is case-insensitive substring matching.
var DefaultExpiryPhrases = []string{
	"expired",
	"authentication required",
	"invalid token",
	"token is invalid",
	"jwt malformed",
}

type failureKind int

const (
	failureNone failureKind = iota
	failureExpired
	failurePermission
)

func (k failureKind) String() string {
	switch k {
	case failureExpired:
		return "expired"
	case failurePermission:
		return "permission"
	default:
		return "none"
	}
}

// isAuthStatus reports whether the status needs body classification.
func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// classify decides how a response affects the credential. A 401 is always
// expired. A 403 is expired only when one of its messages contains a phrase.
func classify(status int, body []byte, phrases []string) (failureKind, string) {
	messages := errorMessages(body)
	message := ""
	if len(messages) > 0 {
		message = messages[0]
	}

	switch status {
	case http.StatusUnauthorized:
		return failureExpired, message
	case http.StatusForbidden:
		for _, m := range messages {
			lower := strings.ToLower(m)
			for _, phrase := range phrases {
				if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
					return failureExpired, message
				}
			}
		}
		return failurePermission, message
	default:
		return failureNone, ""
	}
}

var messageKeys = []string{"message", "error", "error_description", "detail", "msg"}

// errorMessages extracts human readable messages from an error body: the
// well known string fields of a JSON object (including a nested "error"
// object), or the trimmed raw body.
func errorMessages(body []byte) []string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return []string{trimmed}
	}

	var out []string
	for _, key := range messageKeys {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case map[string]interface{}:
			for _, nested := range messageKeys {
				if s, ok := v[nested].(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	if len(out) == 0 {
		return []string{trimmed}
	}
	return out
}
