package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitName = "doorctl.service"

var (
	unitPath  = "/etc/systemd/system/" + unitName
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

const unitTemplate = `[Unit]
Description=doorctl roller door controller
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=@EXEC@ daemon --config @CONFIG@ --daemon-socket @SOCKET@
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=2

[Install]
WantedBy=multi-user.target
`

// RenderUnit returns the systemd unit running exePath as the daemon.
func RenderUnit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"@EXEC@", exePath,
		"@CONFIG@", configPath,
		"@SOCKET@", socketPath,
	).Replace(unitTemplate)
}

// Install writes the unit for the current executable, then enables and
// starts it.
func Install(configPath, socketPath string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	if err := writeUnit(RenderUnit(exePath, configPath, socketPath)); err != nil {
		return err
	}

	logrus.Infof("starting doorctl")

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", unitName)
}

func writeUnit(unit string) error {
	logrus.Infof("writing systemd unit to %s", unitPath)

	err := os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(unit), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}
	return nil
}
