package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// BadKey holds the value of a trailing key without a value.
const BadKey = "!BADKEY"

// LogrusLogger adapts a logrus logger to dfu.Logger. Key/value pairs
// become logrus fields.
type LogrusLogger struct {
	l logrus.FieldLogger
}

// NewLogrus wraps l. A nil l uses logrus.StandardLogger().
func NewLogrus(l logrus.FieldLogger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{l: l}
}

func (l *LogrusLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.l.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, keysAndValues ...interface{}) {
	l.l.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *LogrusLogger) Error(msg string, keysAndValues ...interface{}) {
	l.l.WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			f[BadKey] = kv[i]
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		f[key] = kv[i+1]
	}
	return f
}
