package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"already_normal", "AB12CDE", "AB12CDE", false},
		{"lowercase", "ab12cde", "AB12CDE", false},
		{"internal_space", "AB12 CDE", "AB12CDE", false},
		{"surrounding_whitespace", "  ab12 cde\t", "AB12CDE", false},
		{"dateless_plate", "1 AbC", "1ABC", false},
		{"empty", "", "", true},
		{"whitespace_only", "   ", "", true},
		{"punctuation", "AB12-CDE", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePlate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
