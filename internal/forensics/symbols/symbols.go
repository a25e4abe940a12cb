// Package symbols resolves kernel symbol tables for memory analysis tools.
// A table for the guest's exact kernel version is required to interpret raw
// kernel structures; resolution walks an ordered list of strategies until one
// produces a structurally valid artifact.
package symbols

import (
	"context"
	"errors"
	"time"
)

// ErrUnresolved is returned when every strategy failed, including minimal
// synthesis. Dependent tools are skipped, the job itself continues.
var ErrUnresolved = errors.New("symbol table unresolved")

// Key identifies the symbol table to resolve.
type Key struct {
	KernelVersion string
	// Banner is the raw kernel banner extracted from the image, when known.
	Banner string
}

// Artifact is a resolved symbol table on disk.
type Artifact struct {
	KernelVersion string
	Path          string
	Strategy      string
	Degraded      bool
	CreatedAt     time.Time
}

// Strategy is one step of the resolution waterfall.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, key Key) (*Artifact, error)
}
