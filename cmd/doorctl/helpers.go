package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/protocol"
)

// sendCommand posts payload and logs every result. A refused command is
// returned as an error so the exit status reflects it.
func sendCommand(payload string) (protocol.Reply, error) {
	reply, err := apiClient.Command(payload)
	if err != nil {
		return reply, err
	}
	return reply, reportResults(reply.Results...)
}

func reportResults(results ...door.Result) error {
	var rejected []string
	for _, r := range results {
		if r.Rejected() {
			rejected = append(rejected, string(r))
			continue
		}
		logrus.Infof("daemon responded: %s", r)
	}
	if len(rejected) > 0 {
		return fmt.Errorf("command refused: %s (is the child lock on?)", strings.Join(rejected, ", "))
	}
	return nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func positionText(p door.Position) string {
	switch p {
	case door.PositionOpened:
		return color.GreenString(string(p))
	case door.PositionClosed:
		return color.BlueString(string(p))
	case door.PositionOpening, door.PositionClosing:
		return color.YellowString(string(p))
	}
	return string(p)
}
