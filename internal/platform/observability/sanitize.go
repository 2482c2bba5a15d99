package observability

import "unicode"

const (
	maxRouteRunes  = 180
	maxMethodRunes = 10
	maxUserIDRunes = 64
)

// SanitizeRoute prepares a path or route pattern for use as a log field or span attribute.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return printable(route, maxRouteRunes)
}

func SanitizeMethod(method string) string { return printable(method, maxMethodRunes) }

// SanitizeUserID bounds shopper ids written to logs.
func SanitizeUserID(uid string) string { return printable(uid, maxUserIDRunes) }

// printable keeps at most limit runes of value, skipping control characters.
func printable(value string, limit int) string {
	out := make([]rune, 0, min(len(value), limit))
	for _, r := range value {
		if len(out) == limit {
			break
		}
		if !unicode.IsControl(r) {
			out = append(out, r)
		}
	}
	return string(out)
}
