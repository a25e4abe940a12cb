// Package report renders a finalized result set into a human-readable HTML
// document. Rendering happens after aggregation, a renderer failure never
// invalidates the results it was given.
package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

type Renderer struct {
	dir string
}

func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

type templateData struct {
	JobID         string
	InstanceID    string
	GeneratedDate string
	ImageSize     string
	ImageSha256   string
	Degraded      bool
	Summary       api.Summary
	Invocations   []api.ToolInvocation
}

// Render writes the report for a completed job and returns its path.
func (r *Renderer) Render(job *api.Job) (string, error) {
	if job.Results == nil {
		return "", fmt.Errorf("job %s has no results to render", job.Id)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}

	data := templateData{
		JobID:         job.Id.String(),
		InstanceID:    job.InstanceId,
		GeneratedDate: time.Now().Format(time.RFC1123),
		Degraded:      job.Results.Degraded,
		Summary:       job.Results.Summary,
		Invocations:   job.Results.Invocations,
	}
	if job.Image != nil {
		data.ImageSize = humanize.Bytes(uint64(job.Image.SizeBytes))
		data.ImageSha256 = job.Image.Sha256
	}

	path := filepath.Join(r.dir, fmt.Sprintf("report-%s.html", job.Id))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, data); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Findings, credentials and tool errors derive from guest memory. They must
// never reach the operator's browser unescaped.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Memory Analysis Report {{.JobID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { border-bottom: 2px solid #444; padding-bottom: 0.3em; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: left; }
th { background: #f0f0f0; }
.degraded { background: #fff3cd; border: 1px solid #ffc107; padding: 0.8em; margin: 1em 0; }
.failed { color: #a00; }
.completed { color: #080; }
</style>
</head>
<body>
<h1>Memory Analysis Report</h1>
<p>Job <code>{{.JobID}}</code> &middot; instance <code>{{.InstanceID}}</code> &middot; generated {{.GeneratedDate}}</p>
{{if .ImageSha256}}<p>Image: {{.ImageSize}}, sha256 <code>{{.ImageSha256}}</code></p>{{end}}
{{if .Degraded}}<div class="degraded">Analysis ran with a degraded symbol table. Kernel-structure findings are incomplete.</div>{{end}}

<h2>Summary</h2>
<table>
<tr><th>Tools requested</th><td>{{.Summary.ToolsRequested}}</td></tr>
<tr><th>Succeeded</th><td>{{.Summary.ToolsSucceeded}}</td></tr>
<tr><th>Failed</th><td>{{.Summary.ToolsFailed}}</td></tr>
<tr><th>Skipped</th><td>{{.Summary.ToolsSkipped}}</td></tr>
</table>

{{if .Summary.KeyFindings}}
<h2>Key Findings</h2>
<ul>{{range .Summary.KeyFindings}}<li>{{.}}</li>{{end}}</ul>
{{end}}

{{if .Summary.SecurityIndicators}}
<h2>Security Indicators</h2>
<ul>{{range .Summary.SecurityIndicators}}<li>{{.}}</li>{{end}}</ul>
{{end}}

{{if .Summary.CredentialsFound}}
<h2>Potential Credentials</h2>
<ul>{{range .Summary.CredentialsFound}}<li><code>{{.}}</code></li>{{end}}</ul>
{{end}}

{{if .Summary.FileSignatures}}
<h2>File Signatures</h2>
<table>
<tr><th>Offset</th><th>Description</th><th>Tool</th></tr>
{{range .Summary.FileSignatures}}<tr><td>{{.Offset}}</td><td>{{.Description}}</td><td>{{.Tool}}</td></tr>
{{end}}</table>
{{end}}

<h2>Tool Invocations</h2>
<table>
<tr><th>Tool</th><th>Status</th><th>Duration</th><th>Detail</th></tr>
{{range .Invocations}}<tr><td>{{.Tool}}</td><td class="{{.Status}}">{{.Status}}</td><td>{{.Duration}}</td><td>{{.Error}}</td></tr>
{{end}}</table>
</body>
</html>
`))
