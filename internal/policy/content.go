package policy

import "strings"

// explicitRestricted lists countries where explicit narrative content may
// not be served.
var explicitRestricted = map[string]struct{}{
	"ID": {},
	"MY": {},
	"SA": {},
	"AE": {},
	"QA": {},
	"KW": {},
	"PK": {},
}

// MaxExplicitLevel returns the highest explicitness level servable to a
// client in the given country. Unknown or empty countries are unrestricted.
func MaxExplicitLevel(country string) int {
	if _, ok := explicitRestricted[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return 0
	}
	return 100
}

// ClampExplicitLevel lowers a requested explicitness level to the regional
// maximum. A nil level is left alone, the generator default applies.
func ClampExplicitLevel(level *int, country string) *int {
	if level == nil {
		return nil
	}
	if max := MaxExplicitLevel(country); *level > max {
		capped := max
		return &capped
	}
	return level
}
