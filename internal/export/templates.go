package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		// Fallback to built-in template if file not found
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for report rendering
type TemplateData struct {
	Project     ProjectInfo
	Tasks       []TaskInfo
	Messages    []MessageInfo
	Progress    int
	GeneratedAt time.Time
}

// RenderReportHTML renders the status report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Project.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ddd; padding: 0.5rem; text-align: left; }
    .message { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Project.Name}}</h1>
  <div class="meta">{{.Project.OrgName}} | {{.Project.ClientName}} | {{.Project.Status}} | {{.Progress}}% complete</div>
  {{if .Project.ClientAmount}}<div class="meta">Client payment: +{{.Project.ClientAmount}} | Employee payout: -{{.Project.Amount}}</div>{{end}}
  {{if .Tasks}}
  <h2>Tasks</h2>
  <table>
    <tr><th>Task</th><th>Target date</th><th>Status</th></tr>
    {{range .Tasks}}<tr><td>{{.Title}}</td><td>{{.TargetDate}}</td><td>{{.Status}}</td></tr>{{end}}
  </table>
  {{end}}
  {{if .Messages}}
  <h2>Recent Activity</h2>
  {{range .Messages}}<div class="message"><strong>{{.SenderName}}</strong>: {{.Text}}</div>{{end}}
  {{end}}
  <div class="meta">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}}</div>
</body>
</html>`
