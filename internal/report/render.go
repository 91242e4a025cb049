package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Rendered is a report ready for sending.
type Rendered struct {
	Subject   string
	HTMLBody  string
	PlainBody string
}

type templateData struct {
	Title    string
	Date     string
	Run      *Run
	Duration string
}

var htmlTemplate = template.Must(template.New("report").Parse(defaultTemplate))

// Render builds the subject, HTML and plain text bodies for r.
func Render(r *Run) (*Rendered, error) {
	data := templateData{
		Title:    "engage4me run report",
		Date:     r.StartedAt.Local().Format("Monday, January 2 15:04"),
		Run:      r,
		Duration: r.Duration().Round(time.Second).String(),
	}

	var htmlBuf bytes.Buffer
	if err := htmlTemplate.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Rendered{
		Subject:   fmt.Sprintf("engage4me - %d engaged, %s", r.Engaged, r.StartedAt.Local().Format("Jan 2 15:04")),
		HTMLBody:  htmlBuf.String(),
		PlainBody: Text(r),
	}, nil
}

// Text renders r as plain text.
func Text(r *Run) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Run started %s, took %s, halted: %s\n\n",
		r.StartedAt.Local().Format(time.RFC3339), r.Duration().Round(time.Second), r.HaltReason)
	fmt.Fprintf(&buf, "ticks:              %d\n", r.Ticks)
	fmt.Fprintf(&buf, "relevant:           %d\n", r.Relevant)
	fmt.Fprintf(&buf, "already processed:  %d\n", r.AlreadyProcessed)
	fmt.Fprintf(&buf, "engaged:            %d\n", r.Engaged)
	fmt.Fprintf(&buf, "skipped no comment: %d\n", r.SkippedNoComment)
	fmt.Fprintf(&buf, "failed:             %d\n", r.Failed)
	fmt.Fprintf(&buf, "breaks:             %d\n", r.Breaks)

	if len(r.Engagements) > 0 {
		buf.WriteString("\nEngagements:\n")
		for i, e := range r.Engagements {
			fmt.Fprintf(&buf, "%d. %s\n   %q\n", i+1, e.URL, e.Comment)
		}
	}
	if len(r.Errors) > 0 {
		buf.WriteString("\nErrors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&buf, "- %s\n", e)
		}
	}
	return buf.String()
}

func formatError(ordinal int, err error) string {
	return fmt.Sprintf("ordinal %d: %v", ordinal, err)
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background: #f3f2ef; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #0a66c2; margin-bottom: 5px; }
        .date { color: #666; margin-bottom: 20px; }
        table.stats td { padding: 2px 12px 2px 0; }
        .engagement { border-bottom: 1px solid #eee; padding: 12px 0; }
        .engagement:last-child { border-bottom: none; }
        .comment { color: #333; font-style: italic; margin: 6px 0; }
        .link { color: #0a66c2; text-decoration: none; }
        .error { color: #b24020; font-size: 13px; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}} · {{.Duration}} · halted: {{.Run.HaltReason}}</div>

        <table class="stats">
            <tr><td>Notifications scanned</td><td>{{.Run.Ticks}}</td></tr>
            <tr><td>Relevant</td><td>{{.Run.Relevant}}</td></tr>
            <tr><td>Already processed</td><td>{{.Run.AlreadyProcessed}}</td></tr>
            <tr><td>Engaged</td><td>{{.Run.Engaged}}</td></tr>
            <tr><td>Skipped, no comment left</td><td>{{.Run.SkippedNoComment}}</td></tr>
            <tr><td>Failed</td><td>{{.Run.Failed}}</td></tr>
        </table>

        {{range .Run.Engagements}}
        <div class="engagement">
            <a href="{{.URL}}" class="link">{{.URL}}</a>
            <div class="comment">{{.Comment}}</div>
        </div>
        {{end}}

        {{range .Run.Errors}}<div class="error">{{.}}</div>{{end}}

        <div class="footer">
            Generated by engage4me
        </div>
    </div>
</body>
</html>`
