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

var artifactTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(v any, layout string) string {
			switch t := v.(type) {
			case time.Time:
				return t.Format(layout)
			case *time.Time:
				if t == nil {
					return ""
				}
				return t.Format(layout)
			}
			return ""
		},
	}

	templateContent, err := templateFS.ReadFile("templates/artifact.html")
	if err != nil {
		// Fallback to built-in template if file not found
		artifactTemplate = template.Must(template.New("artifact").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	artifactTemplate = template.Must(template.New("artifact").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for artifact template rendering.
type TemplateData struct {
	Title       string
	DocType     string
	Version     string
	Status      string
	CreatedBy   string
	PublishedAt *time.Time
	ValidUntil  *time.Time
	Signatures  []SignatureEntry
	RenderedAt  time.Time
}

// RenderArtifactHTML renders the artifact template with provided data.
func RenderArtifactHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := artifactTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; }
    th, td { border: 1px solid #999; padding: 0.4rem 0.6rem; text-align: left; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.DocType}} | Version {{.Version}} | {{.Status}}</div>
  <table>
    <tr><th>Role</th><th>Name</th><th>Signed</th><th>Comment</th></tr>
    {{range .Signatures}}
    <tr><td>{{.Role}}</td><td>{{.Name}}</td><td>{{formatDate .SignedAt "2006-01-02 15:04"}}</td><td>{{.Comment}}</td></tr>
    {{end}}
  </table>
  <p>Rendered {{formatDate .RenderedAt "2006-01-02 15:04"}}</p>
</body>
</html>`
