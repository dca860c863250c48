// Package logger provides structured logging for the update engine and
// its CLI, built on logrus the way the teacher's console/file logger
// pair is: a small registry of *logrus.Logger instances that every
// errorIf/fatalIf call fans out to.
package logger

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

var log = struct {
	loggers []*logrus.Logger
	mu      sync.Mutex
}{}

// Register adds l to the set of loggers that errorIf/fatalIf/Info fan
// out to. Call EnableConsole/EnableFile, or Register a custom logger
// directly for tests.
func Register(l *logrus.Logger) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.loggers = append(log.loggers, l)
}

// Reset clears all registered loggers. Used by tests.
func Reset() {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.loggers = nil
}

func callerSource() string {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "<unknown>"
		line = 0
	}
	file = path.Base(file)
	name := runtime.FuncForPC(pc).Name()
	name = strings.TrimPrefix(name, "github.com/deltapkg/deltapkg/")
	return fmt.Sprintf("[%s:%d:%s()]", file, line, name)
}

func fields(err error) logrus.Fields {
	f := logrus.Fields{
		"source": callerSource(),
		"cause":  err.Error(),
	}
	var ue *updateerr.Error
	if e, ok := err.(*updateerr.Error); ok {
		ue = e
	}
	if ue != nil {
		f["kind"] = ue.Kind.String()
		f["security"] = ue.Kind.Security()
		if len(ue.Trace()) > 0 {
			f["stack"] = strings.Join(ue.Trace(), " ")
		}
	}
	return f
}

// ErrorIf logs err at Error level across all registered loggers if err
// is non-nil. Security-class kinds (see updateerr.Kind.Security) are
// tagged so they're never mistaken for routine I/O noise downstream.
func ErrorIf(err error, msg string, data ...interface{}) {
	if err == nil {
		return
	}
	f := fields(err)
	for _, l := range log.loggers {
		l.WithFields(f).Errorf(msg, data...)
	}
}

// FatalIf behaves like ErrorIf but terminates the process via the
// underlying logrus.Logger's Fatal semantics (os.Exit(1) after
// logging) on the first registered logger, mirroring the teacher's
// fatalIf. With no logger registered it exits with status 1 directly.
func FatalIf(err error, msg string, data ...interface{}) {
	if err == nil {
		return
	}
	f := fields(err)
	for _, l := range log.loggers {
		l.WithFields(f).Fatalf(msg, data...)
	}
	os.Exit(1)
}

// Info logs an informational message across all registered loggers.
func Info(msg string, data ...interface{}) {
	for _, l := range log.loggers {
		l.Infof(msg, data...)
	}
}
