package logging

import "go.uber.org/zap"

// ZapLogger adapts a zap logger to dfu.Logger.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZap wraps l. A nil l discards everything.
//
// Example:
//
//	z, _ := zap.NewDevelopment()
//	op := dfu.NewOperation(pkg, port, dfu.WithLogger(logging.NewZap(z)))
func NewZap(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{s: l.Sugar()}
}

func (l *ZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *ZapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *ZapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}
