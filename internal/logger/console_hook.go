package logger

import "github.com/sirupsen/logrus"

// ConsoleConfig carries the console logger's configuration, mirroring
// the teacher's consoleLogger.
type ConsoleConfig struct {
	Enable bool   `json:"enable"`
	Level  string `json:"level"`
}

// EnableConsole registers a text-formatted logger writing to stderr at
// the given level, the same way the teacher's enableConsoleLogger does
// for its own default logger.
func EnableConsole(cfg ConsoleConfig) error {
	if !cfg.Enable {
		return nil
	}
	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	l := logrus.New()
	l.Level = lvl
	l.Formatter = new(logrus.TextFormatter)
	Register(l)
	return nil
}
