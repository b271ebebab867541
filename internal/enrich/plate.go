package enrich

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// NormalizePlate canonicalizes a registration plate: uppercase, no
// whitespace. Plates are compared and cached only in this form.
func NormalizePlate(plate string) (string, error) {
	var b strings.Builder
	b.Grow(len(plate))
	for _, r := range plate {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}

	out := b.String()
	if out == "" {
		return "", eris.New("enrich: registration plate is required")
	}
	for _, r := range out {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", eris.Errorf("enrich: invalid registration plate %q", plate)
		}
	}
	return out, nil
}
