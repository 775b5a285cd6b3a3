package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTestResults(t *testing.T) {
	data := []byte(`{
		"numTotalTests": 5,
		"numPassedTests": 3,
		"numFailedTests": 1,
		"numPendingTests": 1,
		"numTodoTests": 0,
		"startTime": 1714558800000,
		"testResults": [
			{
				"name": "/app/src/feed/Feed.test.tsx",
				"status": "passed",
				"startTime": 1714558800100,
				"endTime": 1714558801350,
				"assertionResults": [{"status": "passed"}, {"status": "passed"}, {"status": "pending"}]
			},
			{
				"name": "/app/src/home/Home.test.tsx",
				"status": "failed",
				"startTime": 1714558801000,
				"endTime": 1714558802500,
				"assertionResults": [{"status": "passed"}, {"status": "failed"}]
			}
		]
	}`)

	m, err := ParseTestResults(data)
	require.NoError(t, err)

	assert.Equal(t, 5, m.Total)
	assert.Equal(t, 3, m.Passed)
	assert.Equal(t, 1, m.Failed)
	assert.Equal(t, 1, m.Skipped)
	assert.Equal(t, 2.5, m.Duration)

	require.Len(t, m.Suites, 2)
	assert.Equal(t, "Feed.test.tsx", m.Suites[0].Name)
	assert.Equal(t, 2, m.Suites[0].Passed)
	assert.Equal(t, 1, m.Suites[0].Skipped)
	assert.Equal(t, 1.25, m.Suites[0].Duration)
	assert.Equal(t, "failed", m.Suites[1].Status)
	assert.Equal(t, 1, m.Suites[1].Failed)
}

func TestParseTestResults_Invalid(t *testing.T) {
	_, err := ParseTestResults([]byte(`{"testResults": []}`))
	assert.Error(t, err)

	_, err = ParseTestResults([]byte(`not json`))
	assert.Error(t, err)
}
