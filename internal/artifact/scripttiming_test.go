package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScriptTimings(t *testing.T) {
	log := `{"script":"test","duration":4200,"timestamp":"2024-05-01T10:20:30Z","exitCode":0}
{"name":"build","durationMs":12000.5,"timestamp":1714558900000}

this is not json
{"script":"lint","duration":-1}
{"script":"test","duration":3900,"timestamp":"2024-05-02T10:20:30Z","exitCode":1}
`
	runs, err := ParseScriptTimings([]byte(log))
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, "test", runs[0].Script)
	assert.Equal(t, 4200.0, runs[0].Duration)
	assert.Equal(t, int64(1714558830), runs[0].Timestamp.Unix())

	assert.Equal(t, "build", runs[1].Script)
	assert.Equal(t, 12000.5, runs[1].Duration)
	assert.Equal(t, int64(1714558900000), runs[1].Timestamp.UnixMilli())

	assert.Equal(t, 1, runs[2].ExitCode)
}

func TestParseScriptTimingsAllGarbage(t *testing.T) {
	_, err := ParseScriptTimings([]byte("nope\n{]\n"))
	assert.Error(t, err)
}

func TestParseScriptTimingsEmpty(t *testing.T) {
	runs, err := ParseScriptTimings(nil)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestParseBuildStats(t *testing.T) {
	b, err := ParseBuildStats([]byte(`{"jsBytes": 204800, "cssBytes": 51200}`))
	require.NoError(t, err)
	assert.Equal(t, 250.0, b.BundleKB())

	b, err = ParseBuildStats([]byte(`{"jsBytes": 1, "totalKB": 312.4}`))
	require.NoError(t, err)
	assert.Equal(t, 312.4, b.BundleKB())
}
