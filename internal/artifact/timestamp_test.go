package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilenameTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 20, 30, 123_000_000, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"epoch millis", "1714558830123", want},
		{"dashed iso with millis", "2024-05-01T10-20-30-123Z", want},
		{"dashed iso with dot millis", "2024-05-01T10-20-30.123Z", want},
		{"dashed iso without millis", "2024-05-01T10-20-30Z", want.Truncate(time.Second)},
		{"dashed iso without zone", "2024-05-01T10-20-30", want.Truncate(time.Second)},
		{"dashed iso with offset", "2024-05-01T12-20-30+02-00", want.Truncate(time.Second)},
		{"epoch seconds", "1714558830", want.Truncate(time.Second)},
		{"rfc3339", "2024-05-01T10:20:30.123Z", want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilenameTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseFilenameTimestampEquivalentEncodings(t *testing.T) {
	a, err := ParseFilenameTimestamp("2024-05-01T10-20-30-123Z")
	require.NoError(t, err)
	b, err := ParseFilenameTimestamp("1714558830123")
	require.NoError(t, err)

	assert.Equal(t, a.UnixMilli(), b.UnixMilli())
}

func TestParseFilenameTimestampRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "latest", "2024-05-01", "2024-13-45T99-99-99Z"} {
		_, err := ParseFilenameTimestamp(in)
		assert.Error(t, err, in)
	}
}

func TestFormatFilenameTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 20, 30, 123_000_000, time.UTC)

	s := FormatFilenameTimestamp(ts)
	assert.Equal(t, "2024-05-01T10-20-30.123Z", s)
	assert.NotContains(t, s, ":")

	back, err := ParseFilenameTimestamp(s)
	require.NoError(t, err)
	assert.True(t, ts.Equal(back))
}
