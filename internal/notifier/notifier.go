package notifier

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"SwingSentinel/internal/model"
)

// Notifier delivers a rendered alert, tagging the given recipient ids.
type Notifier interface {
	Send(ctx context.Context, text string, recipients []string) error
	Name() string
}

// NotificationError reports a delivery failure on one channel.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// SendWithRetry sends a message with exponential backoff retry. The final
// failure is returned as a *NotificationError.
func SendWithRetry(ctx context.Context, n Notifier, text string, recipients []string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := n.Send(ctx, text, recipients)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := time.Duration(1<<uint(i)) * time.Second
		log.Printf("[WARN] %s send failed (attempt %d/%d): %v, retrying in %v", n.Name(), i+1, maxRetries+1, err, backoff)
		select {
		case <-ctx.Done():
			return &NotificationError{Channel: n.Name(), Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}
	return &NotificationError{Channel: n.Name(), Err: fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)}
}

// LogNotifier writes alerts to the process log. Used in development.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

// FormatAlert renders evt without markup for the log.
func (LogNotifier) FormatAlert(evt *model.AlertEvent) string {
	return strings.NewReplacer("**", "").Replace(FormatAlertMarkdown(evt))
}

func (LogNotifier) Send(_ context.Context, text string, recipients []string) error {
	if len(recipients) > 0 {
		log.Printf("[INFO] alert -> %s\n%s", strings.Join(recipients, ","), text)
		return nil
	}
	log.Printf("[INFO] alert\n%s", text)
	return nil
}
