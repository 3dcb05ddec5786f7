package util

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ConfigureLogging applies LOG_LEVEL and picks the formatter. JSON output is
// used where logs are shipped to a collector (Lambda).
func ConfigureLogging(jsonOutput bool) {
	if jsonOutput {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("unknown LOG_LEVEL, keeping info")
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	logrus.SetLevel(parsed)
}

// EnvInt returns the positive integer stored in name, or fallback.
func EnvInt(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logrus.WithField(name, value).Warn("ignoring invalid integer setting")
		return fallback
	}
	return parsed
}
