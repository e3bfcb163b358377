// Package report builds the data-quality page for a run's records.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// Issue names a data-quality problem and how many records show it.
type Issue struct {
	Name  string
	Count int
}

// Report is the outcome of a data-quality check.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Records     int
	Issues      []Issue
}

// OK reports whether no issue was found.
func (r Report) OK() bool { return len(r.Issues) == 0 }

// Summary joins issue names with "; ".
func (r Report) Summary() string {
	names := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		names = append(names, issue.Name)
	}
	return strings.Join(names, "; ")
}

// Check inspects records for empty names, missing lengths and non-positive
// lengths. An empty record set has no issues.
func Check(runID string, records []crawler.Record, now time.Time) Report {
	var emptyNames, missing, nonPositive int
	for _, r := range records {
		if strings.TrimSpace(r.Name) == "" {
			emptyNames++
		}
		switch {
		case r.LengthM == nil:
			missing++
		case *r.LengthM <= 0:
			nonPositive++
		}
	}
	rep := Report{RunID: runID, GeneratedAt: now.UTC(), Records: len(records)}
	for _, issue := range []Issue{
		{Name: "empty names", Count: emptyNames},
		{Name: "missing lengths", Count: missing},
		{Name: "non-positive lengths", Count: nonPositive},
	} {
		if issue.Count > 0 {
			rep.Issues = append(rep.Issues, issue)
		}
	}
	return rep
}

var page = template.Must(template.New("dq").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Data Quality Report</title></head>
<body>
<h1>Data Quality Report</h1>
<p>Run {{.RunID}} &middot; {{.Records}} record(s) &middot; {{.GeneratedAt.Format "2006-01-02T15:04:05Z07:00"}}</p>
{{- if .Issues}}
<p>Errors:</p>
<ul>
{{- range .Issues}}
<li>{{.Name}} ({{.Count}})</li>
{{- end}}
</ul>
{{- else}}
<p>No issues detected.</p>
{{- end}}
</body></html>
`))

// HTML renders the report page.
func HTML(rep Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, rep); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
