package notifier

// Notifier delivers a message to one or more recipients. Delivery is
// best-effort from the caller's point of view: a failed send must never
// roll back the state change that triggered it.
type Notifier interface {
	Send(subject string, to []string, textBody, htmlBody string) error
}
