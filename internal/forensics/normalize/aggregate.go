package normalize

import (
	"fmt"

	"github.com/dustin/go-humanize"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

// Aggregate folds all finished invocations into the job-level summary. Each
// key finding is one sentence attributable to its source tool.
func Aggregate(invocations []api.ToolInvocation) api.Summary {
	summary := api.Summary{ToolsRequested: len(invocations)}

	for _, invocation := range invocations {
		switch invocation.Status {
		case api.ToolStatusCompleted:
			summary.ToolsSucceeded++
		case api.ToolStatusFailed:
			summary.ToolsFailed++
		case api.ToolStatusSkipped, api.ToolStatusNotRun:
			summary.ToolsSkipped++
		}

		if invocation.Result == nil {
			continue
		}
		result := invocation.Result

		if finding := keyFinding(invocation.Tool, result); finding != "" {
			summary.KeyFindings = append(summary.KeyFindings, finding)
		}
		for _, indicator := range result.Indicators {
			summary.SecurityIndicators = append(summary.SecurityIndicators, fmt.Sprintf("%s (%s)", indicator, invocation.Tool))
		}
		for _, credential := range result.Credentials {
			summary.CredentialsFound = append(summary.CredentialsFound, fmt.Sprintf("%s (%s)", credential, invocation.Tool))
		}
		summary.FileSignatures = append(summary.FileSignatures, result.Signatures...)
	}

	summary.KeyFindings = dedupe(summary.KeyFindings)
	summary.SecurityIndicators = dedupe(summary.SecurityIndicators)
	summary.CredentialsFound = dedupe(summary.CredentialsFound)
	return summary
}

// keyFinding condenses one tool's result into a single sentence, empty when
// the tool produced nothing of substance.
func keyFinding(tool string, result *api.PartialResult) string {
	switch {
	case len(result.Signatures) > 0:
		return fmt.Sprintf("%s identified %s embedded file signatures", tool, humanize.Comma(int64(len(result.Signatures))))
	case len(result.Credentials) > 0:
		return fmt.Sprintf("%s surfaced %s potential credential matches", tool, humanize.Comma(int64(len(result.Credentials))))
	case len(result.Indicators) > 0:
		return fmt.Sprintf("%s flagged %s security indicators", tool, humanize.Comma(int64(len(result.Indicators))))
	}

	for _, key := range []string{"strings_extracted", "files_carved", "feature_files", "processes_listed", "rules_matched"} {
		if count, ok := result.Metrics[key]; ok && count > 0 {
			return fmt.Sprintf("%s reported %s %s", tool, humanize.Comma(count), metricNoun(key))
		}
	}
	if len(result.Artifacts) > 0 {
		return fmt.Sprintf("%s recovered %s artifacts", tool, humanize.Comma(int64(len(result.Artifacts))))
	}
	return ""
}

func metricNoun(key string) string {
	switch key {
	case "strings_extracted":
		return "printable strings"
	case "files_carved":
		return "carved files"
	case "feature_files":
		return "feature files"
	case "processes_listed":
		return "running processes"
	case "rules_matched":
		return "rule matches"
	default:
		return key
	}
}
