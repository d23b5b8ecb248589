package upstream

import (
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// leveledLogger 将 retryablehttp 的键值对日志转换为 logrus 字段。
type leveledLogger struct {
	logger logrus.FieldLogger
}

func newLeveledLogger(logger logrus.FieldLogger) retryablehttp.LeveledLogger {
	if logger == nil {
		return nil
	}
	return &leveledLogger{logger: logger.WithField("action", "upstream_retry")}
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Error(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Info(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Warn(msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	if len(keysAndValues)%2 == 1 {
		fields["extra"] = keysAndValues[len(keysAndValues)-1]
	}
	return fields
}
