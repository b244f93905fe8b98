// Package daemon wires the door controller to its hardware, the cloud
// bridge, the scheduler and the local API served on a unix socket.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/ble"
	"github.com/smartgate/doorctl/pkg/clock"
	"github.com/smartgate/doorctl/pkg/config"
	"github.com/smartgate/doorctl/pkg/controller"
	"github.com/smartgate/doorctl/pkg/events"
	"github.com/smartgate/doorctl/pkg/schedule"
	"github.com/smartgate/doorctl/pkg/settings"
)

type server struct {
	ctrl  *controller.Controller
	hub   *events.EventHub
	conf  config.Config
	sched *schedule.Scheduler
	prov  *ble.Provisioner
	adv   *ble.Advertiser

	// onProvisioned restarts the cloud bridge after new broker credentials.
	onProvisioned func()
	done          <-chan struct{}
}

func (s *server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", s.getStatus)
	router.POST("/command", s.postCommand)
	router.POST("/rf", s.postRF)
	router.POST("/button", s.postButton)
	router.GET("/click-gate", s.getClickGate)
	router.PUT("/click-gate", s.setClickGate)
	router.POST("/ble/write", s.postBleWrite)
	router.GET("/schedule", s.getSchedule)
	router.PUT("/schedule", s.setSchedule)
	router.POST("/schedule/:name/skip", s.skipSchedule)
	router.GET("/config", s.getConfig)
	router.GET("/events", s.streamEvents)
	router.GET("/version", getVersion)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	backend, err := settings.OpenSQLite(conf.DatabasePath())
	if err != nil {
		return err
	}
	store := settings.New(backend)
	defer func() {
		if err := store.Close(); err != nil {
			logrus.Errorf("failed to close settings store: %v", err)
		}
	}()

	clk := clock.Real{}
	hw, err := openHardware(conf, clk)
	if err != nil {
		return err
	}
	defer hw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewEventHub()
	adv := ble.NewAdvertiser(ble.LogSink{})
	go adv.Run(ctx, hub)

	ctrl := controller.New(controller.Options{
		Relay:     hw.board,
		Store:     store,
		Publisher: hub,
		Radio:     adv,
		Beeper:    hw.buzzer,
		Clock:     clk,
	})
	ctrlDone := make(chan struct{})
	go func() {
		defer close(ctrlDone)
		_ = ctrl.Run(ctx)
	}()

	sched := schedule.NewScheduler(ctrl, hub)
	if err := sched.Load(conf.Schedules()); err != nil {
		logrus.Errorf("invalid schedules, none loaded: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	hw.startInputs(ctx, conf, clk, ctrl)

	bridge := &mqttRunner{parent: ctx, conf: conf, store: store, ctrl: ctrl, hub: hub}
	bridge.restart()
	defer bridge.stop()

	reload := func() {
		if err := conf.Load(); err != nil {
			logrus.Errorf("failed to reload config: %v", err)
			return
		}
		if err := sched.Load(conf.Schedules()); err != nil {
			logrus.Errorf("failed to reload schedules: %v", err)
		}
		bridge.reload()
		logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigc:
				reload()
			}
		}
	}()
	if err := config.Watch(ctx, configPath, config.DefaultDebounce, reload); err != nil {
		logrus.Warnf("config file watch disabled: %v", err)
	}

	s := &server{
		ctrl:          ctrl,
		hub:           hub,
		conf:          conf,
		sched:         sched,
		prov:          ble.NewProvisioner(store, ctrl, hub),
		adv:           adv,
		onProvisioned: bridge.restart,
		done:          ctx.Done(),
	}
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A stale socket from a crashed daemon blocks Listen.
	_ = os.Remove(unixSocketPath)
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	// The controller releases every relay when it exits.
	<-ctrlDone

	logrus.Info("exiting")
	return nil
}
