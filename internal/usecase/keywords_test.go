package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		label   string
		summary string
		want    []string
	}{
		{
			name:    "filters stopwords and short words",
			label:   "Invoice tracking pain",
			summary: "Users want a tool for the invoices they have to chase",
			want:    []string{"invoice", "tracking", "pain", "invoices", "chase"},
		},
		{
			name:    "caps at five keywords",
			label:   "alpha bravo charlie delta echo foxtrot golf",
			summary: "",
			want:    []string{"alpha", "bravo", "charlie", "delta", "echo"},
		},
		{
			name:    "deduplicates across label and summary",
			label:   "Calendar sync",
			summary: "calendar sync keeps breaking",
			want:    []string{"calendar", "sync", "keeps", "breaking"},
		},
		{
			name:    "lowercases and splits on punctuation",
			label:   "CSV-Export Failures!",
			summary: "",
			want:    []string{"csv", "export", "failures"},
		},
		{
			name:    "falls back to the raw label",
			label:   "The App",
			summary: "for users who need it",
			want:    []string{"the app"},
		},
		{
			name:    "empty input yields nothing",
			label:   "  ",
			summary: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.label, tt.summary))
		})
	}
}
