package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusAcquiring   JobStatus = "acquiring"
	JobStatusAnalyzing   JobStatus = "analyzing"
	JobStatusAggregating JobStatus = "aggregating"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type ToolStatus string

const (
	ToolStatusNotRun    ToolStatus = "not_run"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
	ToolStatusSkipped   ToolStatus = "skipped"
)

// Job is the API representation of a forensic analysis job.
type Job struct {
	Id          uuid.UUID  `json:"id"`
	InstanceId  string     `json:"instanceId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep"`
	Error       string     `json:"error,omitempty"`
	Tools       []string   `json:"tools"`
	Image       *Image     `json:"image,omitempty"`
	Results     *ResultSet `json:"results,omitempty"`
	ReportPath  string     `json:"reportPath,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

type JobList []Job

// Image describes an acquired guest memory image.
type Image struct {
	Id         uuid.UUID `json:"id"`
	InstanceId string    `json:"instanceId"`
	Domain     string    `json:"domain"`
	Path       string    `json:"path"`
	Format     string    `json:"format"`
	SizeBytes  int64     `json:"sizeBytes"`
	Sha256     string    `json:"sha256"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ImageList []Image

// ToolInvocation captures a single tool run against an image.
type ToolInvocation struct {
	Tool     string         `json:"tool"`
	Status   ToolStatus     `json:"status"`
	Duration time.Duration  `json:"duration"`
	Error    string         `json:"error,omitempty"`
	Result   *PartialResult `json:"result,omitempty"`
}

// ResultKind classifies how much structure the normalizer recovered from a
// tool's raw output.
type ResultKind string

const (
	ResultKindStructured ResultKind = "structured"
	ResultKindPartial    ResultKind = "partial"
	ResultKindRaw        ResultKind = "raw"
)

// PartialResult is the normalized output of one tool. Structured results
// carry parsed fields, partial results carry whatever could be salvaged and
// the unparsed remainder, raw results carry only the remainder.
type PartialResult struct {
	Kind        ResultKind        `json:"kind"`
	Metrics     map[string]int64  `json:"metrics,omitempty"`
	Artifacts   []string          `json:"artifacts,omitempty"`
	Indicators  []string          `json:"indicators,omitempty"`
	Credentials []string          `json:"credentials,omitempty"`
	Signatures  []FileSignature   `json:"signatures,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Unparsed    string            `json:"unparsed,omitempty"`
}

// FileSignature is a carved or identified file type hit inside the image.
type FileSignature struct {
	Offset      int64  `json:"offset"`
	Description string `json:"description"`
	Tool        string `json:"tool,omitempty"`
}

// ResultSet aggregates all tool invocations for a job together with the
// cross-tool summary.
type ResultSet struct {
	Invocations []ToolInvocation `json:"invocations"`
	Summary     Summary          `json:"summary"`
	Degraded    bool             `json:"degraded"`
}

// Summary is the cross-tool rollup shown at the top of a report.
type Summary struct {
	ToolsRequested     int             `json:"toolsRequested"`
	ToolsSucceeded     int             `json:"toolsSucceeded"`
	ToolsFailed        int             `json:"toolsFailed"`
	ToolsSkipped       int             `json:"toolsSkipped"`
	KeyFindings        []string        `json:"keyFindings"`
	SecurityIndicators []string        `json:"securityIndicators"`
	CredentialsFound   []string        `json:"credentialsFound"`
	FileSignatures     []FileSignature `json:"fileSignatures"`
}

// SymbolStrategy identifies which step of the resolution waterfall produced
// a symbol table.
type SymbolStrategy string

const (
	SymbolStrategyCached     SymbolStrategy = "cached"
	SymbolStrategyGenerated  SymbolStrategy = "generated"
	SymbolStrategyDownloaded SymbolStrategy = "downloaded"
	SymbolStrategySystemMap  SymbolStrategy = "system_map"
	SymbolStrategyInstalled  SymbolStrategy = "installed"
	SymbolStrategyMinimal    SymbolStrategy = "minimal"
)

// SymbolTable describes a resolved kernel symbol table.
type SymbolTable struct {
	KernelVersion string         `json:"kernelVersion"`
	Path          string         `json:"path"`
	Strategy      SymbolStrategy `json:"strategy"`
	Degraded      bool           `json:"degraded"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// SubmitJobRequest is the payload for creating a new analysis job.
type SubmitJobRequest struct {
	InstanceId string   `json:"instanceId" validate:"required,min=1,max=253"`
	Tools      []string `json:"tools,omitempty" validate:"omitempty,dive,alphanumunicode|containsany=_-"`
	// ImageId analyzes an already-acquired image instead of capturing a new
	// one. The instance id must match the image's.
	ImageId *uuid.UUID `json:"imageId,omitempty"`
}

// Instance is a hypervisor guest as reported by the inventory service.
type Instance struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	State  string `json:"state,omitempty"`
}

type InstanceList []Instance
