package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"upkeep/internal/types"
)

//go:embed templates/*.txt
var templateFS embed.FS

// allKinds lists every kind that must have a template.
var allKinds = []types.NotificationKind{
	types.NotifyRequestCreated,
	types.NotifyRequestAssigned,
	types.NotifyRequestGenerated,
	types.NotifyApprovalRequested,
	types.NotifyApprovalDecided,
	types.NotifyStatusChanged,
}

// MessageData is the value the templates execute against.
type MessageData struct {
	RecipientName  string
	Request        *types.Request
	TemplateTitle  string
	PreviousStatus types.RequestStatus
}

// Renderer turns a kind and its data into a subject and plain-text body.
type Renderer struct {
	templates map[types.NotificationKind]*template.Template
}

var templateFuncs = template.FuncMap{
	"money": formatCents,
	"date": func(d types.Date) string {
		if d.IsZero() {
			return "not set"
		}
		return d.String()
	},
}

// NewRenderer parses the embedded templates. Every kind must define both a
// "subject" and a "body" template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[types.NotificationKind]*template.Template, len(allKinds))}
	for _, kind := range allKinds {
		name := string(kind) + ".txt"
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("renderer: parse %s: %w", name, err)
		}
		for _, part := range []string{"subject", "body"} {
			if tmpl.Lookup(part) == nil {
				return nil, fmt.Errorf("renderer: %s does not define %q", name, part)
			}
		}
		r.templates[kind] = tmpl
	}
	return r, nil
}

// MustNewRenderer is NewRenderer for package-level wiring; the templates
// are embedded, so a failure is a build defect.
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render executes the templates of kind.
func (r *Renderer) Render(kind types.NotificationKind, data MessageData) (subject, body string, err error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return "", "", fmt.Errorf("renderer: no template for kind %q", kind)
	}
	if data.RecipientName == "" {
		data.RecipientName = "there"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "subject", data); err != nil {
		return "", "", fmt.Errorf("renderer: %s subject: %w", kind, err)
	}
	subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := tmpl.ExecuteTemplate(&buf, "body", data); err != nil {
		return "", "", fmt.Errorf("renderer: %s body: %w", kind, err)
	}
	return subject, buf.String(), nil
}

// formatCents renders an amount in cents as dollars, e.g. 123456 as
// "$1,234.56".
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var grouped strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(c)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, grouped.String(), cents%100)
}
