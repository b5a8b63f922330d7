package commands

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// newLogger returns a logger writing to stderr. When logDir is set, every
// level from info down to debug is also written to its own file.
func newLogger(logDir string, discard bool) *logrus.Logger {
	logger := logrus.New()
	logger.Formatter = new(prefixed.TextFormatter)

	if logDir == "" {
		return logger
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		logger.WithError(err).Info("Failed to create log directory, using default stderr")
		return logger
	}

	pathMap := lfshook.PathMap{}
	for _, level := range []logrus.Level{logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel} {
		path := filepath.Join(logDir, "murmur_"+level.String()+".log")

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logger.Infof("Failed to open %s, using default stderr", path)
			continue
		}
		f.Close()

		pathMap[level] = path
	}

	if len(pathMap) > 0 && discard {
		logger.Out = ioutil.Discard
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}
