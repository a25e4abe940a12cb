package normalize

import (
	"regexp"
	"strconv"
	"strings"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

var (
	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)password\s*[=:]\s*\S{4,}`),
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
		regexp.MustCompile(`(?i)authorization:\s*bearer\s+\S+`),
		regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	}

	indicatorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/dev/tcp/\S+`),
		regexp.MustCompile(`(?i)\bnc\s+-e\s+/bin/\S+`),
		regexp.MustCompile(`(?i)\b(?:wget|curl)\s+https?://\S+`),
		regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}:\d{2,5}\b`),
	}

	// binwalk and similar scanners print "OFFSET  HEX  DESCRIPTION" rows
	signatureLine = regexp.MustCompile(`^(\d+)\s+0x[0-9A-Fa-f]+\s+(.+)$`)

	// foremost audit lines like "jpg:= 12"
	carvedCount = regexp.MustCompile(`^([a-z0-9]+):=?\s+(\d+)`)

	// yara prints "RuleName target"
	yaraMatch = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s+\S+$`)

	pathToken = regexp.MustCompile(`(^|\s)(/[a-zA-Z0-9._/-]{3,})`)
)

// parseVocabulary applies per-tool line extraction to build a best-effort
// structured record from plain text.
func parseVocabulary(tool, text string) (api.PartialResult, bool) {
	lines := strings.Split(text, "\n")

	result := api.PartialResult{
		Kind:    api.ResultKindPartial,
		Metrics: map[string]int64{},
	}

	switch tool {
	case "strings":
		result.Metrics["strings_extracted"] = int64(len(lines))
		scanSecurityTokens(lines, &result)
	case "binwalk":
		for _, line := range lines {
			if m := signatureLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				offset, _ := strconv.ParseInt(m[1], 10, 64)
				result.Signatures = append(result.Signatures, api.FileSignature{
					Offset:      offset,
					Description: m[2],
					Tool:        tool,
				})
			}
		}
		result.Metrics["signatures_found"] = int64(len(result.Signatures))
	case "foremost":
		var total int64
		for _, line := range lines {
			if m := carvedCount.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				count, _ := strconv.ParseInt(m[2], 10, 64)
				result.Metrics["carved_"+m[1]] = count
				total += count
			}
		}
		result.Metrics["files_carved"] = total
	case "yara":
		for _, line := range lines {
			if m := yaraMatch.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				result.Indicators = append(result.Indicators, "yara rule matched: "+m[1])
			}
		}
		result.Metrics["rules_matched"] = int64(len(result.Indicators))
	case "bulk_extractor":
		for _, line := range lines {
			if strings.HasPrefix(line, "feature file: ") {
				result.Artifacts = append(result.Artifacts, strings.TrimPrefix(line, "feature file: "))
			}
		}
		result.Metrics["feature_files"] = int64(len(result.Artifacts))
	case "volatility":
		// header plus one row per process
		rows := 0
		for _, line := range lines {
			if strings.TrimSpace(line) != "" {
				rows++
			}
		}
		if rows > 2 {
			result.Metrics["processes_listed"] = int64(rows - 2)
		}
	default:
		scanSecurityTokens(lines, &result)
		for _, line := range lines {
			for _, m := range pathToken.FindAllStringSubmatch(line, -1) {
				result.Artifacts = append(result.Artifacts, m[2])
				if len(result.Artifacts) >= 50 {
					break
				}
			}
		}
	}

	result.Indicators = dedupe(result.Indicators)
	result.Credentials = dedupe(result.Credentials)
	result.Artifacts = dedupe(result.Artifacts)

	if len(result.Metrics) == 0 && len(result.Indicators) == 0 &&
		len(result.Credentials) == 0 && len(result.Artifacts) == 0 &&
		len(result.Signatures) == 0 {
		return api.PartialResult{}, false
	}

	// keep a bounded tail of the source text for traceability
	result.Unparsed = tail(text, 4096)
	return result, true
}

func scanSecurityTokens(lines []string, result *api.PartialResult) {
	for _, line := range lines {
		for _, pattern := range credentialPatterns {
			if m := pattern.FindString(line); m != "" {
				result.Credentials = append(result.Credentials, redact(m))
			}
		}
		for _, pattern := range indicatorPatterns {
			if m := pattern.FindString(line); m != "" {
				result.Indicators = append(result.Indicators, m)
			}
		}
	}
}

// redact keeps enough of a credential hit to locate it without reproducing
// the secret itself.
func redact(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12] + "..."
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
