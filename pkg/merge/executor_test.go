package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestSanitizeDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *time.Time
	}{
		{name: "empty is null", input: "", expected: nil},
		{name: "garbage is null", input: "not-a-date", expected: nil},
		{name: "partial date is null", input: "1990-06", expected: nil},
		{
			name:     "iso date",
			input:    "1990-06-15",
			expected: timePtr(time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "rfc3339",
			input:    "1990-06-15T00:00:00Z",
			expected: timePtr(time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "us slash format",
			input:    "06/15/1990",
			expected: timePtr(time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeDate(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.expected.Equal(*got))
		})
	}
}

func TestMergedFields(t *testing.T) {
	trade := "Acme Trading"
	current := models.Entity{ID: "e1", Name: "Acme", TradeName: &trade}

	t.Run("SuppliedValuesWin", func(t *testing.T) {
		name := "Acme Corp"
		newTrade := "Acme Worldwide"
		fields := mergedFields(current, models.MergedEntityPayload{Name: &name, TradeName: &newTrade})
		assert.Equal(t, "Acme Corp", fields.Name)
		require.NotNil(t, fields.TradeName)
		assert.Equal(t, "Acme Worldwide", *fields.TradeName)
	})

	t.Run("AbsentValuesKeepCurrent", func(t *testing.T) {
		fields := mergedFields(current, models.MergedEntityPayload{})
		assert.Equal(t, "Acme", fields.Name)
		require.NotNil(t, fields.TradeName)
		assert.Equal(t, "Acme Trading", *fields.TradeName)
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}
