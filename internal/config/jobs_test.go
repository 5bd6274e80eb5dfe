package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJobsJSONArray(t *testing.T) {
	path := writeTemp(t, "batch.json", `[
		{"payload": "summarize the quarterly report", "estimated_tokens": 400},
		{"payload": "translate to French"}
	]`)

	specs, err := LoadJobsJSON(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "summarize the quarterly report", specs[0].Payload)
	assert.Equal(t, 400, specs[0].EstimatedTokens)
	assert.Equal(t, 0, specs[1].EstimatedTokens)
}

func TestLoadJobsJSONSingleObject(t *testing.T) {
	path := writeTemp(t, "one.json", `{"payload": "single request", "estimated_tokens": 50}`)

	specs, err := LoadJobsJSON(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "single request", specs[0].Payload)
}

func TestLoadJobsJSONRejectsEmptyAndInvalid(t *testing.T) {
	_, err := LoadJobsJSON(writeTemp(t, "empty.json", `[]`))
	assert.Error(t, err)

	_, err = LoadJobsJSON(writeTemp(t, "nopayload.json", `{"estimated_tokens": 10}`))
	assert.Error(t, err)

	_, err = LoadJobsJSON(writeTemp(t, "garbage.json", `not json at all`))
	assert.Error(t, err)

	_, err = LoadJobsJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadJobsCSV(t *testing.T) {
	path := writeTemp(t, "batch.csv", "payload,estimated_tokens\nfirst prompt,300\nsecond prompt,\n")

	specs, err := LoadJobsCSV(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "first prompt", specs[0].Payload)
	assert.Equal(t, 300, specs[0].EstimatedTokens)
	assert.Equal(t, "second prompt", specs[1].Payload)
	assert.Equal(t, 0, specs[1].EstimatedTokens)
}

func TestLoadJobsCSVWithoutTokenColumn(t *testing.T) {
	path := writeTemp(t, "plain.csv", "payload\nonly prompts here\n")

	specs, err := LoadJobsCSV(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, 0, specs[0].EstimatedTokens)
}

func TestLoadJobsCSVErrors(t *testing.T) {
	_, err := LoadJobsCSV(writeTemp(t, "headeronly.csv", "payload\n"))
	assert.Error(t, err, "header without rows should fail")

	_, err = LoadJobsCSV(writeTemp(t, "nocol.csv", "prompt\nhello\n"))
	assert.Error(t, err, "missing payload column should fail")

	_, err = LoadJobsCSV(writeTemp(t, "badtokens.csv", "payload,estimated_tokens\nhello,abc\n"))
	assert.Error(t, err, "non-numeric estimate should fail")
}

func TestLoadJobsAutoDetectsFormat(t *testing.T) {
	jsonPath := writeTemp(t, "a.json", `[{"payload": "x"}]`)
	csvPath := writeTemp(t, "a.csv", "payload\ny\n")

	specs, err := LoadJobs(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "x", specs[0].Payload)

	specs, err = LoadJobs(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "y", specs[0].Payload)

	_, err = LoadJobs(writeTemp(t, "a.txt", "whatever"))
	assert.Error(t, err, "unknown extension should fail")
}

func TestEstimateTokens(t *testing.T) {
	// 400 bytes of prompt at ~4 bytes/token plus a 100-token completion.
	payload := make([]byte, 400)
	for i := range payload {
		payload[i] = 'a'
	}
	assert.Equal(t, 200, EstimateTokens(string(payload), 100))

	// Never below one token.
	assert.Equal(t, 1, EstimateTokens("", 0))
}

func TestBuildJobsFillsMissingEstimates(t *testing.T) {
	specs := []JobSpec{
		{Payload: "explicit", EstimatedTokens: 500},
		{Payload: "needs a heuristic"},
	}

	jobs := BuildJobs(specs, 100)
	require.Len(t, jobs, 2)

	assert.Equal(t, 500, jobs[0].EstimatedTokens)
	assert.Equal(t, EstimateTokens("needs a heuristic", 100), jobs[1].EstimatedTokens)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
}

func TestGenerateJobs(t *testing.T) {
	jobs := GenerateJobs(5, 150)
	require.Len(t, jobs, 5)
	for _, j := range jobs {
		assert.Equal(t, 150, j.EstimatedTokens)
		assert.NotEmpty(t, j.Payload)
	}
}
