package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Notifier delivers an operator alert
type Notifier interface {
	Notify(ctx context.Context, title, body string, urgent bool) error
}

// LogNotifier writes alerts to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, title, body string, urgent bool) error {
	if urgent {
		l.logger.Warn(title, zap.String("body", body), zap.Bool("urgent", true))
		return nil
	}
	l.logger.Info(title, zap.String("body", body))
	return nil
}

// Multi fans an alert out to every notifier. All are attempted; the errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string, urgent bool) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, body, urgent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
