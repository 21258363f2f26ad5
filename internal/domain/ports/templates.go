package ports

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReminderEmailData carries the subscription fields a reminder email is
// rendered from
type ReminderEmailData struct {
	UserName         string
	SubscriptionName string
	Plan             string
	StartDate        time.Time
	RenewalDate      time.Time
	Cost             decimal.Decimal
	Currency         string
	Period           string
	Note             string
}

// TemplateRenderer is the template collaborator. Rendering is pure: no
// side effects, same output for the same data.
type TemplateRenderer interface {
	RenderReminderEmail(data ReminderEmailData) (subject, body string, err error)
}
