package ports

import "context"

// DeliveryResult reports the outcome of one delivery attempt. Ordinary
// delivery failure is data, not an error; only catastrophic configuration
// problems surface as errors from the adapter's constructor.
type DeliveryResult struct {
	Success      bool
	ErrorMessage string
}

// Mailer is the delivery collaborator: attempt one delivery, report the
// outcome. Implementations must not return a failed result as an error.
type Mailer interface {
	AttemptDelivery(ctx context.Context, recipient, subject, body string) DeliveryResult
}
