package preflight

import (
	"fmt"
	"strings"
)

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Summary renders a one-line pass count for status UIs.
func Summary(results []Result) string {
	failed := Failed(results)
	if len(failed) == 0 {
		return fmt.Sprintf("all %d checks passed", len(results))
	}
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
	}
	return fmt.Sprintf("%d of %d checks failed: %s", len(failed), len(results), strings.Join(names, ", "))
}
