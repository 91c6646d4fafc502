package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// storeLogger forwards badger's printf-style logs to zap under a component field.
// Info messages are logged at debug level.
type storeLogger struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*storeLogger)(nil)

func newStoreLogger(l *zap.Logger) *storeLogger {
	return &storeLogger{sugar: l.With(zap.String("component", "badger")).Sugar()}
}

func (s *storeLogger) Errorf(format string, args ...interface{}) {
	s.sugar.Error(fmt.Sprintf(format, args...))
}

func (s *storeLogger) Warningf(format string, args ...interface{}) {
	s.sugar.Warn(fmt.Sprintf(format, args...))
}

func (s *storeLogger) Infof(format string, args ...interface{}) {
	s.sugar.Debug(fmt.Sprintf(format, args...))
}

func (s *storeLogger) Debugf(format string, args ...interface{}) {
	s.sugar.Debug(fmt.Sprintf(format, args...))
}
