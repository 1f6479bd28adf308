package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object",
			input: `{"lat": 26.2, "lon": -80.0, "wind_speed": 85}`,
			want:  `{"lat": 26.2, "lon": -80.0, "wind_speed": 85}`,
		},
		{
			name:  "surrounding prose",
			input: "Here is my forecast:\n{\"lat\": 26.2}\nLet me know if you need anything else.",
			want:  `{"lat": 26.2}`,
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"lat\": 26.2}\n```",
			want:  `{"lat": 26.2}`,
		},
		{
			name:  "nested objects",
			input: `prefix {"outer": {"inner": {"lat": 26.2}}} suffix`,
			want:  `{"outer": {"inner": {"lat": 26.2}}}`,
		},
		{
			name:  "brace inside string",
			input: `{"note": "watch the } brace", "lat": 26.2}`,
			want:  `{"note": "watch the } brace", "lat": 26.2}`,
		},
		{
			name:  "escaped quote inside string",
			input: `{"note": "he said \"}\"", "lat": 26.2}`,
			want:  `{"note": "he said \"}\"", "lat": 26.2}`,
		},
		{
			name:  "only the first object",
			input: `{"lat": 1} and also {"lat": 2}`,
			want:  `{"lat": 1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONErrors(t *testing.T) {
	t.Run("no object", func(t *testing.T) {
		_, err := ExtractJSON("True. The forecast looks accurate.")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrExtraction)
	})
	t.Run("unterminated object", func(t *testing.T) {
		_, err := ExtractJSON(`{"lat": 26.2, "lon":`)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrExtraction)
	})
	t.Run("empty input", func(t *testing.T) {
		_, err := ExtractJSON("")
		assert.ErrorIs(t, err, domain.ErrExtraction)
	})
}
