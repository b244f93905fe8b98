package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/events"
)

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of the door",
		Long:    `Get door position, lock and learning state, and click gate settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.Status()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			d := st.Door
			cmd.Println(bold("Door:"))
			cmd.Println("  Position: " + positionText(d.Position))
			cmd.Println("  Child lock: " + bool2Text(d.Locked))
			cmd.Printf("  Travel time: %s\n", time.Duration(d.TravelTime))
			cmd.Println()

			cmd.Println(bold("Learning:"))
			switch d.LearnMode {
			case "", "NONE":
				cmd.Println("  Session: " + bool2Text(false))
			default:
				cmd.Printf("  Session: %s %s\n", bool2Text(true), d.LearnMode)
				if d.RfLearnStep != door.RfLearnNone && d.RfLearnStep != "" {
					cmd.Printf("  RF step: %s\n", d.RfLearnStep)
				}
				if d.LearnStarted {
					cmd.Println("  Travel timer running, send STOP when the door reaches its end.")
				}
			}
			cmd.Printf("  Paired remote codes: %d/%d\n", d.PairedCodes, door.NumSlots)
			cmd.Println()

			cmd.Println(bold("BLE:"))
			cmd.Println("  Control mode: " + bool2Text(d.BleControlMode))
			cmd.Println("  Advertising: " + bool2Text(st.BleAdvertising))
			if st.BleAdvert != "" {
				cmd.Println("  Advert: " + st.BleAdvert)
			}
			cmd.Println()

			printClickGate(cmd, d.ClickGate)

			if st.MockHardware {
				cmd.Println()
				cmd.Println(color.YellowString("Daemon is running with mock hardware, relays are not driven."))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw daemon response")

	return cmd
}

func NewWatchCommand() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Stream daemon events until interrupted",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return apiClient.Watch(ctx, func(ev events.Event) {
				if statusOnly && ev.Name != events.DoorStatus {
					return
				}
				cmd.Printf("%s %s %s\n",
					time.Now().Format(time.TimeOnly),
					color.CyanString(ev.Name),
					string(ev.Data))
			})
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status-only", false, "only print door status events")

	return cmd
}
