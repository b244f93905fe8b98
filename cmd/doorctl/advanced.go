package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/rf"
	"github.com/smartgate/doorctl/pkg/utils/ptr"
)

func NewLearnCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "learn",
		Short:   "Start a learning session",
		GroupID: gAdvanced,
		Long: `Start a learning session.

travel: the next OPEN or CLOSE starts a timer and the following STOP records
the full travel time. Sessions expire after 3 minutes.

rf: press the remote buttons for open, stop, close and lock in that order.
Sessions expire after 60 seconds and keep codes captured so far.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "travel",
			Short: "Learn the door travel time",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				_, err := sendCommand(door.CommandLearnTravel.String())
				return err
			},
		},
		&cobra.Command{
			Use:   "rf",
			Short: "Pair remote control codes",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				_, err := sendCommand(door.CommandLearnRF.String())
				return err
			},
		},
	)

	return cmd
}

func NewBleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ble",
		Short:   "Control the BLE channel",
		GroupID: gAdvanced,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "on",
			Short: "Start BLE advertising",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				_, err := sendCommand(door.CommandBleStart.String())
				return err
			},
		},
		&cobra.Command{
			Use:   "off",
			Short: "Stop BLE advertising",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				_, err := sendCommand(door.CommandBleStop.String())
				return err
			},
		},
		&cobra.Command{
			Use:   "write [blob]",
			Short: "Write a blob to the BLE characteristic",
			Long: `Write a blob to the BLE characteristic.

A JSON object carrying wifi_ssid, wifi_pass, mqtt_broker, mqtt_username,
mqtt_pass or mqtt_token_device provisions the device; anything else is
handled as a command payload.`,
			Example: `  doorctl ble write '{"mqtt_broker":"tcp://10.0.0.2:1883","mqtt_token_device":"abc"}'
  doorctl ble write OPEN`,
			Args: cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				out, err := apiClient.BleWrite(args[0])
				if err != nil {
					return err
				}
				if out.Provisioned {
					logrus.WithField("mqttChanged", out.MQTTChanged).Info("provisioning stored")
					return nil
				}
				return reportResults(out.Reply.Results...)
			},
		},
	)

	return cmd
}

func NewRFCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rf [code]",
		Short:   "Inject a decoded remote code",
		GroupID: gAdvanced,
		Example: `  doorctl rf 0xA1B2C3
  doorctl rf 10597059`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			code, err := rf.ParseCode(args[0])
			if err != nil {
				return err
			}
			ret, err := apiClient.RFCode(code)
			if err != nil {
				return err
			}
			return reportResults(ret.Result)
		},
	}
}

func NewButtonCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "button [event]",
		Short:   "Inject a wall button event",
		GroupID: gAdvanced,
		Long: `Inject a wall button event.

Events: OPEN, CLOSE, STOP, LOCK_PRESS, LEARN_TRAVEL_TRIGGER,
LEARN_RF_TRIGGER, WIFI_RESET_TRIGGER.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			evt, err := door.ParseButtonEvent(args[0])
			if err != nil {
				return fmt.Errorf("invalid button event %q: %v", args[0], err)
			}
			ret, err := apiClient.Button(evt)
			if err != nil {
				return err
			}
			return reportResults(ret.Result)
		},
	}
}

func printClickGate(cmd *cobra.Command, c door.GateConfig) {
	cmd.Println(bold("Click gate:"))
	if c.TimeMode == 0 {
		cmd.Printf("  Time window: %s\n", bool2Text(false))
		cmd.Printf("  Clicks to open: %d, to close: %d\n", c.OpenClicks, c.CloseClicks)
		return
	}
	cmd.Printf("  Time window: %s %02d:00 - %02d:00\n", bool2Text(true), c.StartHour, c.EndHour)
	cmd.Printf("  Inside window, clicks to open: %d, to close: %d\n", c.OpenClicks, c.CloseClicks)
	cmd.Printf("  Outside window, clicks to open: %d, to close: %d\n", c.DefaultOpenClicks, c.DefaultCloseClicks)
}

func NewClickGateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "click-gate",
		Aliases: []string{"cg"},
		Short:   "Show or change multi-click settings",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := apiClient.ClickGate()
			if err != nil {
				return err
			}
			printClickGate(cmd, c)
			return nil
		},
	}

	var (
		open, closeClicks, defOpen, defClose int
		mode, start, end                     int
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change multi-click settings",
		Long: `Change multi-click settings. Only the given flags are changed.

Click counts must be 1 to 5 and hours 0 to 23. With --mode 1 the open/close
counts apply between --start and --end (the window may wrap midnight) and
the default counts apply outside it.`,
		Example: `  doorctl click-gate set --open 2 --close 2
  doorctl click-gate set --mode 1 --start 22 --end 6 --open 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var u clickgate.Update
			f := cmd.Flags()
			if f.Changed("open") {
				u.OpenClicks = ptr.To(open)
			}
			if f.Changed("close") {
				u.CloseClicks = ptr.To(closeClicks)
			}
			if f.Changed("def-open") {
				u.DefaultOpenClicks = ptr.To(defOpen)
			}
			if f.Changed("def-close") {
				u.DefaultCloseClicks = ptr.To(defClose)
			}
			if f.Changed("mode") {
				u.TimeMode = ptr.To(mode)
			}
			if f.Changed("start") {
				u.StartHour = ptr.To(start)
			}
			if f.Changed("end") {
				u.EndHour = ptr.To(end)
			}
			if u.Empty() {
				return fmt.Errorf("nothing to change, pass at least one flag")
			}

			c, err := apiClient.SetClickGate(u)
			if err != nil {
				return err
			}
			logrus.Info("click gate updated")
			printClickGate(cmd, c)
			return nil
		},
	}
	f := set.Flags()
	f.IntVar(&open, "open", 1, "clicks required to open")
	f.IntVar(&closeClicks, "close", 1, "clicks required to close")
	f.IntVar(&defOpen, "def-open", 1, "clicks required to open outside the time window")
	f.IntVar(&defClose, "def-close", 1, "clicks required to close outside the time window")
	f.IntVar(&mode, "mode", 0, "time mode (0 always, 1 windowed)")
	f.IntVar(&start, "start", 22, "window start hour")
	f.IntVar(&end, "end", 6, "window end hour")

	cmd.AddCommand(set)
	return cmd
}
