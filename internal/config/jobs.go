package config

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/floodgate-io/floodgate/internal/job"
)

// JobSpec is one batch-file row: the request payload and an optional token
// estimate. Rows without an estimate get the payload heuristic.
type JobSpec struct {
	Payload         string `json:"payload"`
	EstimatedTokens int    `json:"estimated_tokens,omitempty"`
}

// EstimateTokens derives a token estimate from payload length: roughly one
// token per four bytes of prompt, plus the completion budget the executor
// will request. Deliberately coarse; admission only needs an upper-ish bound.
func EstimateTokens(payload string, completionBudget int) int {
	est := len(payload)/4 + completionBudget
	if est < 1 {
		est = 1
	}
	return est
}

// BuildJobs converts specs into dispatchable jobs, filling missing estimates
// from the payload heuristic (with fallbackEstimate as the completion part).
func BuildJobs(specs []JobSpec, fallbackEstimate int) []*job.Job {
	jobs := make([]*job.Job, 0, len(specs))
	for _, s := range specs {
		est := s.EstimatedTokens
		if est <= 0 {
			est = EstimateTokens(s.Payload, fallbackEstimate)
		}
		jobs = append(jobs, job.New(s.Payload, est))
	}
	return jobs
}

// GenerateJobs creates n synthetic jobs with a fixed estimate, for runs
// driven by --count instead of a batch file.
func GenerateJobs(n, estimatedTokens int) []*job.Job {
	jobs := make([]*job.Job, 0, n)
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf("synthetic request %d", i+1)
		jobs = append(jobs, job.New(payload, estimatedTokens))
	}
	return jobs
}

// LoadJobsJSON loads job specs from a JSON file. Supports both a single
// object and an array.
func LoadJobsJSON(path string) ([]JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs JSON file: %w", err)
	}

	var specs []JobSpec
	if err := json.Unmarshal(data, &specs); err == nil {
		if len(specs) == 0 {
			return nil, fmt.Errorf("jobs JSON file contains empty array")
		}
		for i, s := range specs {
			if s.Payload == "" {
				return nil, fmt.Errorf("jobs JSON entry %d: payload is required", i+1)
			}
		}
		return specs, nil
	}

	var single JobSpec
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse jobs JSON (expected array or single object): %w", err)
	}
	if single.Payload == "" {
		return nil, fmt.Errorf("jobs JSON appears to be empty or invalid")
	}
	return []JobSpec{single}, nil
}

// LoadJobsCSV loads job specs from a CSV file with a header row. The
// "payload" column is required; "estimated_tokens" is optional.
func LoadJobsCSV(path string) ([]JobSpec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open jobs CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs CSV: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("jobs CSV must have at least a header row and one data row")
	}

	headerMap := make(map[string]int)
	for i, col := range records[0] {
		headerMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	payloadIdx, ok := headerMap["payload"]
	if !ok {
		return nil, fmt.Errorf("missing required column: payload")
	}
	tokensIdx, hasTokens := headerMap["estimated_tokens"]

	var specs []JobSpec
	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue // Skip empty rows
		}
		if payloadIdx >= len(record) {
			return nil, fmt.Errorf("row %d: missing payload column", i+1)
		}

		spec := JobSpec{Payload: strings.TrimSpace(record[payloadIdx])}
		if spec.Payload == "" {
			return nil, fmt.Errorf("row %d: payload is empty", i+1)
		}

		if hasTokens && tokensIdx < len(record) {
			if raw := strings.TrimSpace(record[tokensIdx]); raw != "" {
				v, err := strconv.Atoi(raw)
				if err != nil || v < 0 {
					return nil, fmt.Errorf("row %d: invalid estimated_tokens: %s", i+1, raw)
				}
				spec.EstimatedTokens = v
			}
		}

		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("jobs CSV contains no data rows")
	}
	return specs, nil
}

// DetectJobFileFormat detects CSV or JSON from the file extension.
// Returns "csv", "json", or "unknown".
func DetectJobFileFormat(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".csv") {
		return "csv"
	}
	if strings.HasSuffix(lower, ".json") {
		return "json"
	}
	return "unknown"
}

// LoadJobs loads specs from a batch file, auto-detecting the format.
func LoadJobs(path string) ([]JobSpec, error) {
	switch DetectJobFileFormat(path) {
	case "csv":
		return LoadJobsCSV(path)
	case "json":
		return LoadJobsJSON(path)
	default:
		return nil, fmt.Errorf("unknown file format (use .csv or .json extension): %s", path)
	}
}
