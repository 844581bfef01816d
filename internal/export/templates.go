package export

import (
	"bytes"
	"html/template"
)

// TemplateData is the fully formatted itinerary handed to the HTML template.
type TemplateData struct {
	Name        string
	Destination string
	DateRange   string
	TotalCost   string
	Days        []TemplateDay
}

type TemplateDay struct {
	Label      string // "Day 1 — Mon, Jun 1"
	Activities []TemplateActivity
}

type TemplateActivity struct {
	Title    string
	TimeSpan string // "10:00 – 11:30", empty if unscheduled
	Location string
	Cost     string
	Notes    string
	Tags     []string
}

// RenderItineraryHTML renders the printable itinerary page.
func RenderItineraryHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := itineraryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var itineraryTemplate = template.Must(template.New("itinerary").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Name}}</title>
<style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #222; line-height: 1.5; }
    h1 { margin-bottom: 0; }
    .meta { color: #666; margin-bottom: 24px; }
    .day { page-break-inside: avoid; margin-bottom: 20px; }
    .day h2 { border-bottom: 2px solid #0066cc; padding-bottom: 4px; font-size: 18px; }
    .activity { margin: 10px 0 10px 12px; }
    .activity .title { font-weight: 600; }
    .activity .when { color: #0066cc; font-size: 13px; }
    .activity .where, .activity .cost { color: #666; font-size: 13px; }
    .activity .notes { font-size: 13px; margin-top: 2px; }
    .tags { font-size: 12px; color: #888; }
    .empty { color: #999; font-style: italic; margin-left: 12px; }
    .total { margin-top: 24px; font-weight: 600; }
</style>
</head>
<body>
    <h1>{{.Name}}</h1>
    <div class="meta">{{.Destination}} · {{.DateRange}}</div>

    {{range .Days}}
    <div class="day">
        <h2>{{.Label}}</h2>
        {{if .Activities}}
            {{range .Activities}}
            <div class="activity">
                <div class="title">{{.Title}}</div>
                {{if .TimeSpan}}<div class="when">{{.TimeSpan}}</div>{{end}}
                {{if .Location}}<div class="where">{{.Location}}</div>{{end}}
                {{if .Cost}}<div class="cost">{{.Cost}}</div>{{end}}
                {{if .Notes}}<div class="notes">{{.Notes}}</div>{{end}}
                {{if .Tags}}<div class="tags">{{range .Tags}}#{{.}} {{end}}</div>{{end}}
            </div>
            {{end}}
        {{else}}
            <div class="empty">Nothing planned yet.</div>
        {{end}}
    </div>
    {{end}}

    {{if .TotalCost}}<div class="total">Estimated total: {{.TotalCost}}</div>{{end}}
</body>
</html>`))
