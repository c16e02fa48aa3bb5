// Package report renders a run summary into human-browsable and
// machine-readable documents at the results root. Image references use the
// fixed per-test artifact paths whether or not the files exist - the
// presence of each file is itself information, and consumers check
// existence separately.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"figcheck/internal/result"
)

// Format selects a summary output document.
type Format string

const (
	FormatHTML      Format = "html"
	FormatBasicHTML Format = "basic-html"
	FormatJSON      Format = "json"
)

// ParseFormats splits a comma-separated format list. Unknown formats are an
// error so a typo does not silently drop the report.
func ParseFormats(spec string) ([]Format, error) {
	var formats []Format
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		switch Format(entry) {
		case FormatHTML, FormatBasicHTML, FormatJSON:
			formats = append(formats, Format(entry))
		default:
			return nil, fmt.Errorf("unknown summary format '%s' (valid: html, basic-html, json)", entry)
		}
	}
	return formats, nil
}

// row is one test's view in the HTML report.
type row struct {
	TestID   string
	Status   result.Status
	Message  string
	Result   string
	Baseline string
	Diff     string
}

// page is the data handed to the HTML template.
type page struct {
	Rows   []row
	Styled bool
	Failed int
	Total  int
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Image comparison</title>
{{if .Styled}}<style>
body { font-family: sans-serif; margin: 1em 2em; }
.test { border-top: 1px solid #ccc; padding: 1em 0; }
.test h2 { font-size: 1em; margin: 0 0 0.5em 0; }
.status-FAIL h2, .status-ERROR h2 { color: #b00; }
.status-PASS h2 { color: #070; }
.images img { max-width: 31%; border: 1px solid #999; vertical-align: top; }
pre { background: #f6f6f6; padding: 0.5em; white-space: pre-wrap; }
</style>{{end}}
</head>
<body>
<h1>Image comparison ({{.Failed}} of {{.Total}} failed)</h1>
{{range .Rows}}
<div class="test status-{{.Status}}">
<h2>{{.TestID}} ({{.Summary}})</h2>
{{if .Message}}<pre>{{.Message}}</pre>{{end}}
<div class="images">
<img src="{{.Result}}" alt="result">
<img src="{{.Baseline}}" alt="baseline">
<img src="{{.Diff}}" alt="diff">
</div>
</div>
{{end}}
</body>
</html>
`

// Summary lowercases the status for the heading, matching the
// "<id> (passed)" phrasing users grep for.
func (r row) Summary() string {
	switch r.Status {
	case result.StatusPass:
		return "passed"
	case result.StatusFail:
		return "failed"
	default:
		return "error"
	}
}

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// WriteAll renders every requested format into the summary's results
// directory and returns the paths written, HTML first so callers can print
// the browsable one.
func WriteAll(s *result.Summary, formats []Format) ([]string, error) {
	var paths []string
	for _, f := range formats {
		var path string
		var err error
		switch f {
		case FormatHTML:
			path, err = writeHTML(s, true)
		case FormatBasicHTML:
			path, err = writeHTML(s, false)
		case FormatJSON:
			path, err = writeJSON(s)
		}
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeHTML(s *result.Summary, styled bool) (string, error) {
	name := "fig_comparison.html"
	if !styled {
		name = "fig_comparison_basic.html"
	}
	path := filepath.Join(s.ResultsDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := renderHTML(f, s, styled); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func renderHTML(w io.Writer, s *result.Summary, styled bool) error {
	p := page{Styled: styled, Total: len(s.Results), Failed: len(s.Failed())}
	for _, c := range s.Results {
		dir := result.SanitizeID(c.TestID)
		p.Rows = append(p.Rows, row{
			TestID:   c.TestID,
			Status:   c.Status,
			Message:  c.Message,
			Result:   dir + "/result.png",
			Baseline: dir + "/baseline.png",
			Diff:     dir + "/result-failed-diff.png",
		})
	}
	return reportTemplate.Execute(w, p)
}

func writeJSON(s *result.Summary) (string, error) {
	path := filepath.Join(s.ResultsDir, "fig_comparison.json")
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
