package observability

import "strings"

const (
	maxRouteLength  = 160
	maxMethodLength = 16
)

// SanitizeRoute trims and bounds route patterns before logging.
func SanitizeRoute(route string) string {
	return sanitizeString(route, maxRouteLength)
}

// SanitizeMethod normalises HTTP methods for log fields.
func SanitizeMethod(method string) string {
	return strings.ToUpper(sanitizeString(method, maxMethodLength))
}

func sanitizeString(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return value
}
