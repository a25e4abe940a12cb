// Package tools runs the configurable battery of analysis tools against an
// acquired memory image. Every tool is an opaque external command, the
// registry only knows how to build its argument list.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Target is the input every tool run receives.
type Target struct {
	ImagePath string
	// WorkDir is a per-invocation scratch directory for tools that carve
	// files or write reports.
	WorkDir string
	// SymbolPath is set when a symbol table was resolved for the image's
	// kernel.
	SymbolPath string
	// SymbolsDegraded marks the table as a minimal synthetic one.
	SymbolsDegraded bool
}

// Spec describes one registered tool.
type Spec struct {
	Name   string
	Binary string
	// BuildArgs produces the command line for one run.
	BuildArgs func(target Target) []string
	// NeedsSymbols gates the tool on a resolved symbol table. Without one
	// the tool is skipped, never failed.
	NeedsSymbols bool
	// Prepare runs before the tool, e.g. to write a rules file into the
	// scratch directory.
	Prepare func(target Target) error
	// Collect merges tool side-output (carved file listings, feature
	// files) into the captured stream after the run.
	Collect func(target Target, raw []byte) []byte
}

// Registry is the open set of runnable tools. New tools are added without
// touching the orchestrator.
type Registry struct {
	specs map[string]Spec
}

func NewRegistry() *Registry {
	r := &Registry{specs: map[string]Spec{}}
	for _, spec := range defaultSpecs() {
		r.Register(spec)
	}
	return r
}

func (r *Registry) Register(spec Spec) {
	r.specs[spec.Name] = spec
}

func (r *Registry) Get(name string) (Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultYaraRules covers the common in-memory indicators: shells spawned
// from unexpected places, credential material, reverse shell one-liners.
const defaultYaraRules = `
rule SuspiciousShell {
    strings:
        $a = "/bin/sh -i" ascii
        $b = "/dev/tcp/" ascii
        $c = "nc -e /bin/" ascii
    condition:
        any of them
}

rule CredentialMaterial {
    strings:
        $a = "PRIVATE KEY-----" ascii
        $b = "password=" ascii nocase
        $c = "Authorization: Bearer " ascii
    condition:
        any of them
}
`

func defaultSpecs() []Spec {
	return []Spec{
		{
			Name:   "strings",
			Binary: "strings",
			BuildArgs: func(t Target) []string {
				return []string{"-n", "8", t.ImagePath}
			},
		},
		{
			Name:   "binwalk",
			Binary: "binwalk",
			BuildArgs: func(t Target) []string {
				return []string{t.ImagePath}
			},
		},
		{
			Name:   "foremost",
			Binary: "foremost",
			BuildArgs: func(t Target) []string {
				return []string{"-i", t.ImagePath, "-o", filepath.Join(t.WorkDir, "foremost")}
			},
			Collect: func(t Target, raw []byte) []byte {
				audit, err := os.ReadFile(filepath.Join(t.WorkDir, "foremost", "audit.txt"))
				if err != nil {
					return raw
				}
				return append(raw, audit...)
			},
		},
		{
			Name:   "yara",
			Binary: "yara",
			Prepare: func(t Target) error {
				return os.WriteFile(filepath.Join(t.WorkDir, "rules.yar"), []byte(defaultYaraRules), 0o644)
			},
			BuildArgs: func(t Target) []string {
				return []string{"-s", filepath.Join(t.WorkDir, "rules.yar"), t.ImagePath}
			},
		},
		{
			Name:   "hexdump",
			Binary: "hexdump",
			BuildArgs: func(t Target) []string {
				// bounded, a full dump of the image is useless noise
				return []string{"-C", "-n", "1048576", t.ImagePath}
			},
		},
		{
			Name:   "bulk_extractor",
			Binary: "bulk_extractor",
			BuildArgs: func(t Target) []string {
				return []string{"-o", filepath.Join(t.WorkDir, "bulk"), t.ImagePath}
			},
			Collect: func(t Target, raw []byte) []byte {
				dir := filepath.Join(t.WorkDir, "bulk")
				entries, err := os.ReadDir(dir)
				if err != nil {
					return raw
				}
				for _, entry := range entries {
					if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
						continue
					}
					info, err := entry.Info()
					if err != nil || info.Size() == 0 {
						continue
					}
					raw = append(raw, []byte(fmt.Sprintf("feature file: %s (%d bytes)\n", entry.Name(), info.Size()))...)
				}
				return raw
			},
		},
		{
			Name:         "volatility",
			Binary:       "vol",
			NeedsSymbols: true,
			BuildArgs: func(t Target) []string {
				return []string{"-f", t.ImagePath, "-s", filepath.Dir(t.SymbolPath), "linux.pslist.PsList"}
			},
		},
	}
}
