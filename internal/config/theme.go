package config

import (
	"fmt"
	"regexp"
)

// Theme meta keys stored in the database.
const (
	ThemeKey    = "theme"
	ThemeHexKey = "theme_hex"
)

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateThemeHex checks that a theme accent color is a #RRGGBB hex string.
func ValidateThemeHex(value string) error {
	if !hexColorRe.MatchString(value) {
		return fmt.Errorf("invalid hex color %q: expected #RRGGBB", value)
	}
	return nil
}
