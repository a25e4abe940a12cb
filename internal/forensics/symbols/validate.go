package symbols

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

const (
	// A genuine ISF table for a full kernel runs to megabytes. Anything
	// under this is either truncated or a stub.
	minTableBytes = 4096

	// minSymbolEntries is the floor for a table to count as authoritative.
	minSymbolEntries = 100
)

// validateTable performs the structural check every strategy's output must
// pass before the waterfall accepts it. Degraded tables skip the entry-count
// floor but still must be well-formed.
func validateTable(path string, degraded bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("symbol table missing: %w", err)
	}
	if !degraded && info.Size() < minTableBytes {
		return fmt.Errorf("symbol table too small: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading symbol table: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("symbol table is not valid json")
	}

	symbols := gjson.GetBytes(data, "symbols")
	if !symbols.Exists() {
		return fmt.Errorf("symbol table has no symbols field")
	}
	if !gjson.GetBytes(data, "base_types").Exists() {
		return fmt.Errorf("symbol table has no base_types field")
	}

	if !degraded {
		count := 0
		symbols.ForEach(func(_, _ gjson.Result) bool {
			count++
			return count < minSymbolEntries
		})
		if count < minSymbolEntries {
			return fmt.Errorf("symbol table has only %d entries", count)
		}
	}

	return nil
}
