package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// FileConfig carries the file logger's configuration, mirroring the
// teacher's fileLogger.
type FileConfig struct {
	Enable   bool   `json:"enable"`
	Filename string `json:"fileName"`
	Level    string `json:"level"`
}

// EnableFile registers a JSON-formatted logger appending to cfg.Filename
// at the given level, the same way the teacher's enableFileLogger does.
func EnableFile(cfg FileConfig) error {
	if !cfg.Enable || cfg.Filename == "" {
		return nil
	}
	file, err := os.OpenFile(cfg.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		file.Close()
		return err
	}
	l := logrus.New()
	l.Out = file
	l.Formatter = new(logrus.JSONFormatter)
	l.Level = lvl
	Register(l)
	return nil
}
