// Package logging configures logrus output and file rotation.
package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level string `yaml:"level"`
	// File enables a rotated log file next to stderr output.
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSize:    32,
		MaxBackups: 3,
		MaxAge:     14,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Configure applies conf to l. The returned closer flushes the log file.
func Configure(l *logrus.Logger, conf Config) (io.Closer, error) {
	level, err := logrus.ParseLevel(conf.Level)
	if err != nil {
		return nil, errors.WithMessage(err, "log level")
	}
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if conf.File == "" {
		l.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	w := &lumberjack.Logger{
		Filename:   conf.File,
		MaxSize:    conf.MaxSize,
		MaxBackups: conf.MaxBackups,
		MaxAge:     conf.MaxAge,
		Compress:   conf.Compress,
	}
	l.SetOutput(io.MultiWriter(os.Stderr, w))
	return w, nil
}
