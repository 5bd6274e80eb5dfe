package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/floodgate-io/floodgate/internal/config"
	"github.com/floodgate-io/floodgate/internal/metrics"
)

// printSummary writes the end-of-run report to stdout. Logs go to stderr, so
// the summary stays pipeable.
func printSummary(s metrics.Snapshot, cfg config.RunConfig) {
	w := os.Stdout

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run summary")
	fmt.Fprintln(w, "-----------")
	fmt.Fprintf(w, "  submitted:          %d\n", s.Submitted)
	fmt.Fprintf(w, "  succeeded:          %d\n", s.Succeeded)
	fmt.Fprintf(w, "  hard failures:      %d\n", s.HardFailures)
	fmt.Fprintf(w, "  retries exhausted:  %d\n", s.RetriesExhausted)
	fmt.Fprintf(w, "  requeues:           %d\n", s.Requeues)
	fmt.Fprintf(w, "  elapsed:            %s\n", s.Elapsed.Round(10*time.Millisecond))

	if s.Succeeded > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  latency min/mean/max:  %s / %s / %s\n",
			s.LatencyMin.Round(time.Millisecond),
			s.LatencyMean.Round(time.Millisecond),
			s.LatencyMax.Round(time.Millisecond))
		fmt.Fprintf(w, "  tokens  min/mean/max:  %d / %d / %d (total %d)\n",
			s.TokensMin, s.TokensMean, s.TokensMax, s.TokensTotal)

		if sec := s.Elapsed.Seconds(); sec > 0 {
			fmt.Fprintf(w, "  throughput:            %.1f req/min, %.0f tokens/min\n",
				float64(s.Succeeded)/sec*60, float64(s.TokensTotal)/sec*60)
		}
	}

	if cfg.Limited() {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  limits: %d rpm, %d tpm, %d workers, %d max retries\n",
			cfg.MaxRPM, cfg.MaxTPM, cfg.Workers, cfg.MaxRetries)
	}

	if len(s.FailureReasons) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  failure reasons:")
		reasons := make([]string, 0, len(s.FailureReasons))
		for r := range s.FailureReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(w, "    %4d  %s\n", s.FailureReasons[r], r)
		}
	}
}
