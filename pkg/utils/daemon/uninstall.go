package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
)

// Uninstall stops and disables the unit and removes its file. A missing
// unit is not an error.
func Uninstall() error {
	if _, err := os.Stat(unitPath); errors.Is(err, fs.ErrNotExist) {
		logrus.Infof("%s not installed", unitName)
		return nil
	}

	logrus.Infof("stopping doorctl")

	if err := systemctl("disable", "--now", unitName); err != nil {
		return fmt.Errorf("failed to stop %s: %w. Are you root?", unitName, err)
	}

	logrus.Infof("removing systemd unit")

	err := os.Remove(unitPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", unitPath, err)
	}

	return systemctl("daemon-reload")
}
