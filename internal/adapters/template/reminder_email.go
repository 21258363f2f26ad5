// Package template implements the pure template collaborator that renders
// reminder email content from subscription fields.
package template

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/renewly/reminder-service/internal/domain/ports"
)

const reminderBody = `Hi {{.UserName}},

Your subscription "{{.SubscriptionName}}" renews on {{.RenewalDate.Format "Monday, 2 January 2006"}}.

  Plan:     {{.Plan}} ({{.Period}})
  Cost:     {{.Cost.StringFixed 2}} {{.Currency}}
  Since:    {{.StartDate.Format "2 January 2006"}}
{{- if .Note}}

Note: {{.Note}}
{{- end}}

If you no longer use it, this is a good moment to cancel before you are charged again.
`

// Renderer implements ports.TemplateRenderer
type Renderer struct {
	body *template.Template
}

// NewRenderer parses the reminder templates
func NewRenderer() (*Renderer, error) {
	body, err := template.New("reminder_email").Parse(reminderBody)
	if err != nil {
		return nil, fmt.Errorf("parse reminder template: %w", err)
	}
	return &Renderer{body: body}, nil
}

// RenderReminderEmail renders the subject and body for one reminder.
// Rendering is pure: same data, same output, no side effects.
func (r *Renderer) RenderReminderEmail(data ports.ReminderEmailData) (string, string, error) {
	subject := fmt.Sprintf("Reminder: %s renews on %s",
		data.SubscriptionName, data.RenewalDate.Format("2 Jan 2006"))

	var b strings.Builder
	if err := r.body.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render reminder email: %w", err)
	}
	return subject, b.String(), nil
}
