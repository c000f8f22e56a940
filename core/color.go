package core

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultColor is the garment colour of a fresh session.
const DefaultColor = "#ffffff"

type Color struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Palette is the set of garment colours offered to users.
var Palette = []Color{
	{"White", "#ffffff"},
	{"Black", "#000000"},
	{"Teal", "#008080"},
	{"Light Blue", "#add8e6"},
	{"Maroon", "#800000"},
	{"Olive", "#808000"},
	{"Coral", "#ff7f50"},
	{"Brown", "#8b4513"},
	{"Gray", "#808080"},
	{"Orange", "#ffa500"},
	{"Purple", "#800080"},
	{"Yellow", "#ffff00"},
	{"Green", "#008000"},
	{"Red", "#ff0000"},
	{"Navy", "#000080"},
	{"Pink", "#ffc0cb"},
}

var hexColor = regexp.MustCompile(`^#[0-9a-f]{6}$`)

// ParseColor validates a "#rrggbb" colour and returns it lower-cased.
func ParseColor(s string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(s))
	if !hexColor.MatchString(c) {
		return "", fmt.Errorf("invalid colour %q: want #rrggbb", s)
	}
	return c, nil
}

// ColorName returns the palette name of c, or "" when c is not in the palette.
func ColorName(c string) string {
	for _, p := range Palette {
		if p.Value == c {
			return p.Name
		}
	}
	return ""
}
