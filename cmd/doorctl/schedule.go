package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/schedule"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage scheduled door commands",
		Long: `Manage scheduled door commands.

  doorctl schedule                                   Show all schedules
  doorctl schedule set NAME 'CRON' COMMAND...        Add or replace a schedule
  doorctl schedule remove NAME                       Remove a schedule
  doorctl schedule skip NAME                         Skip the next run`,
		Example: `  doorctl schedule set nightly '0 23 * * *' CLOSE LOCK
  doorctl schedule set morning '0 7 * * 1-5' UNLOCK`,
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := apiClient.Schedule()
			if err != nil {
				return err
			}
			printSchedule(cmd, jobs)
			return nil
		},
	}

	cmd.AddCommand(
		newScheduleSetCommand(),
		newScheduleRemoveCommand(),
		newScheduleSkipCommand(),
	)

	return cmd
}

func printSchedule(cmd *cobra.Command, jobs []schedule.JobStatus) {
	if len(jobs) == 0 {
		cmd.Println("No schedules configured.")
		return
	}
	cmd.Println(bold("Schedules:"))
	for _, j := range jobs {
		next := "never"
		if !j.NextRun.IsZero() {
			next = fmt.Sprintf("%s (in %s)", j.NextRun.Format(time.DateTime), time.Until(j.NextRun).Round(time.Minute))
		}
		cmd.Printf("  %s  %q  %s\n", bold(j.Name), j.Cron, strings.Join(j.Commands, " "))
		cmd.Printf("    next run: %s\n", next)
	}
}

// currentJobs fetches the configured jobs in the form the daemon accepts.
func currentJobs() ([]schedule.Job, error) {
	status, err := apiClient.Schedule()
	if err != nil {
		return nil, err
	}
	jobs := make([]schedule.Job, 0, len(status))
	for _, s := range status {
		jobs = append(jobs, schedule.Job{Name: s.Name, Cron: s.Cron, Commands: s.Commands})
	}
	return jobs, nil
}

func newScheduleSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set [name] [cron-expression] [command...]",
		Short: "Add or replace a schedule",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, expr := args[0], args[1]
			var commands []string
			for _, a := range args[2:] {
				c, err := door.ParseCommand(a)
				if err != nil {
					return fmt.Errorf("invalid command %q: %v", a, err)
				}
				commands = append(commands, c.String())
			}

			jobs, err := currentJobs()
			if err != nil {
				return err
			}
			replaced := false
			for i := range jobs {
				if jobs[i].Name == name {
					jobs[i] = schedule.Job{Name: name, Cron: expr, Commands: commands}
					replaced = true
				}
			}
			if !replaced {
				jobs = append(jobs, schedule.Job{Name: name, Cron: expr, Commands: commands})
			}

			status, err := apiClient.SetSchedule(jobs)
			if err != nil {
				return err
			}
			logrus.WithField("name", name).Info("schedule saved")
			printSchedule(cmd, status)
			return nil
		},
	}
}

func newScheduleRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove [name]",
		Aliases: []string{"rm", "disable"},
		Short:   "Remove a schedule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := currentJobs()
			if err != nil {
				return err
			}
			kept := jobs[:0]
			for _, j := range jobs {
				if j.Name != args[0] {
					kept = append(kept, j)
				}
			}
			if len(kept) == len(jobs) {
				return fmt.Errorf("no schedule named %q", args[0])
			}

			status, err := apiClient.SetSchedule(kept)
			if err != nil {
				return err
			}
			logrus.WithField("name", args[0]).Info("schedule removed")
			printSchedule(cmd, status)
			return nil
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip [name]",
		Short: "Skip the next run of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := apiClient.SkipSchedule(args[0])
			if err != nil {
				return err
			}
			logrus.WithField("name", args[0]).Info("next run skipped")
			printSchedule(cmd, status)
			return nil
		},
	}
}
