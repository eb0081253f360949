package product

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pantryscan/scan-service/internal/barcode"
)

func TestMatchedLanguage(t *testing.T) {
	snap := &Snapshot{
		Barcode:         barcode.New(testCode, barcode.Food),
		Languages:       []string{"en", "hr", "de"},
		PrimaryLanguage: "hr",
	}

	tests := []struct {
		name      string
		snap      *Snapshot
		preferred []string
		want      string
	}{
		{
			name:      "exact match",
			snap:      snap,
			preferred: []string{"de"},
			want:      "de",
		},
		{
			name:      "regional variant matches the base language",
			snap:      snap,
			preferred: []string{"de-AT"},
			want:      "de",
		},
		{
			name:      "first preference wins",
			snap:      snap,
			preferred: []string{"hr", "en"},
			want:      "hr",
		},
		{
			name:      "no match falls back to the primary language",
			snap:      snap,
			preferred: []string{"ja"},
			want:      "hr",
		},
		{
			name:      "no preferences fall back to the primary language",
			snap:      snap,
			preferred: nil,
			want:      "hr",
		},
		{
			name:      "unparseable codes are skipped without shifting the match",
			snap:      &Snapshot{Languages: []string{"not a tag!", "hr"}},
			preferred: []string{"hr"},
			want:      "hr",
		},
		{
			name:      "empty snapshot falls back to the default",
			snap:      &Snapshot{},
			preferred: []string{"hr"},
			want:      DefaultLanguage,
		},
		{
			name:      "nil snapshot falls back to the default",
			snap:      nil,
			preferred: []string{"hr"},
			want:      DefaultLanguage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.MatchedLanguage(tt.preferred))
		})
	}
}
