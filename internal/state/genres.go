package state

import (
	"slices"
	"strings"

	"github.com/theLastOfCats/anishelf/internal/model"
)

// EffectiveHiddenGenres is the user's hidden list when sensitive content is
// unlocked. Otherwise the sensitive genres come first, followed by the
// user's additions.
func EffectiveHiddenGenres(d model.ListData) []string {
	if d.SensitiveContentUnlocked {
		return dedupe(slices.Clone(d.HiddenGenres))
	}
	return dedupe(append(slices.Clone(model.SensitiveGenres), d.HiddenGenres...))
}

// IsHidden reports whether any of the media's genres is hidden.
func IsHidden(m model.Media, hidden []string) bool {
	for _, g := range m.Genres {
		for _, h := range hidden {
			if strings.EqualFold(g, h) {
				return true
			}
		}
	}
	return false
}

func cleanGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return dedupe(out)
}
