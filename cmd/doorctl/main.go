package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/smartgate/doorctl/pkg/client"
	"github.com/smartgate/doorctl/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/run/doorctl.sock"
	configPath     = "/etc/doorctl.json"

	apiClient *client.Client
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

// bindEnv lets DOORCTL_* variables stand in for the global flags.
func bindEnv(cmd *cobra.Command) {
	viper.SetEnvPrefix("DOORCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	f := cmd.PersistentFlags()
	for _, name := range []string{"log-level", "config", "daemon-socket"} {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
}

func resolveGlobals() {
	logLevel = viper.GetString("log-level")
	configPath = viper.GetString("config")
	unixSocketPath = viper.GetString("daemon-socket")
	apiClient = client.NewClient(unixSocketPath)
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: doorctl daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'doorctl daemon' or check --daemon-socket.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with '--always-allow-non-root-access'")
	}
}

func checkVersion() {
	daemonVersion, err := apiClient.GetVersion()
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			logrus.Error("doorctl daemon is too old to report its version")
		}
		return
	}
	if daemonVersion != version.Version {
		logrus.WithFields(logrus.Fields{
			"clientVersion": version.Version,
			"daemonVersion": daemonVersion,
		}).Warn("Version mismatch between client and daemon. Upgrade both to the same release.")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doorctl",
		Short: "doorctl controls a motorized roller door",
		Long: `doorctl controls a motorized roller door or gate.

The daemon drives the relay board, reads the wall buttons and the RF receiver,
and bridges commands and status over MQTT. Every other subcommand talks to a
running daemon over its unix socket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			resolveGlobals()
			if err := setupLogger(); err != nil {
				return err
			}
			switch cmd.Name() {
			case "daemon", "version", "install", "uninstall":
			default:
				checkVersion()
			}
			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "doorctl daemon unix socket path")
	bindEnv(cmd)

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewWatchCommand(),
		NewCommandCommand(),
		NewLearnCommand(),
		NewBleCommand(),
		NewRFCommand(),
		NewButtonCommand(),
		NewClickGateCommand(),
		NewScheduleCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)
	cmd.AddCommand(newMotionCommands()...)

	return cmd
}
