package common

import (
	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultLogLevel = "info"

// SetupLogging configures the global logrus logger.
func SetupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "parsing log level %q", level)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(colorable.NewColorableStderr())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
