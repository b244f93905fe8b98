package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func newMotionCommands() []*cobra.Command {
	short := map[door.Command]string{
		door.CommandOpen:   "Open the door",
		door.CommandClose:  "Close the door",
		door.CommandStop:   "Stop the door and cancel any learning session",
		door.CommandLock:   "Engage the child lock",
		door.CommandUnlock: "Release the child lock",
	}

	var cmds []*cobra.Command
	for _, c := range []door.Command{
		door.CommandOpen,
		door.CommandClose,
		door.CommandStop,
		door.CommandLock,
		door.CommandUnlock,
	} {
		c := c
		cmds = append(cmds, &cobra.Command{
			Use:     strings.ToLower(c.String()),
			Short:   short[c],
			GroupID: gBasic,
			Args:    cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				_, err := sendCommand(c.String())
				return err
			},
		})
	}
	return cmds
}

func NewCommandCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "command [payload]",
		Aliases: []string{"cmd"},
		Short:   "Send a raw command payload",
		GroupID: gBasic,
		Long: `Send a raw command payload, exactly as an MQTT or BLE client would.

The payload is either a bare command word or a JSON object with any of the
keys state, child_lock, calibration, ble and settings.`,
		Example: `  doorctl command OPEN
  doorctl command '{"state":"CLOSE"}'
  doorctl command '{"settings":{"open":2,"mode":1,"start":22,"end":6}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := sendCommand(args[0])
			if err != nil {
				return err
			}
			if reply.Settings != nil {
				printClickGate(cmd, *reply.Settings)
			}
			return nil
		},
	}
}
