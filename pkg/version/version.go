// Package version exposes build-time version information. The values are
// injected through ldflags by the release pipeline.
package version

import "fmt"

var (
	version   = "v0.0.0-unknown"
	gitCommit = ""
)

type Info struct {
	Version   string
	GitCommit string
}

func Get() Info {
	return Info{
		Version:   version,
		GitCommit: gitCommit,
	}
}

func (i Info) String() string {
	if i.GitCommit == "" {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, i.GitCommit)
}
