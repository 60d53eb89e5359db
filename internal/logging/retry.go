package logging

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// RetryLogger adapts zap to retryablehttp.LeveledLogger so that transport
// retries show up in the same structured log stream.
type RetryLogger struct {
	sugar *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = (*RetryLogger)(nil)

// NewRetryLogger wraps logger; a nil logger falls back to Logger().
func NewRetryLogger(logger *zap.Logger) *RetryLogger {
	if logger == nil {
		logger = Logger()
	}
	return &RetryLogger{sugar: logger.Named("http").Sugar()}
}

func (l *RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Debug is where retryablehttp reports every request; keep it at debug.
func (l *RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}
