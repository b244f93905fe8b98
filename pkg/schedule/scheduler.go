// Package schedule runs door commands on cron schedules, e.g. closing and
// locking the gate every night.
package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/events"
)

const (
	leadDuration     = time.Minute // upcoming notice ahead of each run
	preCheckMaxTimes = 30
	preCheckInterval = time.Second * 10
	settleInterval   = time.Second
	settleMargin     = time.Second * 10
	idleWait         = time.Hour * 10000
)

// Job is one configured schedule.
type Job struct {
	Name     string   `json:"name"`
	Cron     string   `json:"cron"`
	Commands []string `json:"commands"`
}

// JobStatus is reported by the daemon API.
type JobStatus struct {
	Name     string    `json:"name"`
	Cron     string    `json:"cron"`
	Commands []string  `json:"commands"`
	NextRun  time.Time `json:"nextRun"`
}

// Executor runs the commands. Busy reports a learning session in progress,
// during which scheduled runs wait.
type Executor interface {
	// ExecuteScheduled runs cmd without multi-click gating.
	ExecuteScheduled(cmd door.Command) (door.Result, error)
	Busy() (bool, error)
	Snapshot() (door.Snapshot, error)
}

type entry struct {
	job      Job
	commands []door.Command
	schedule cron.Schedule
	nextRun  time.Time

	notified bool
	attempts int
	retryAt  time.Time
	lastErr  string
}

// due is when the runner must next look at the entry.
func (e *entry) due() time.Time {
	switch {
	case !e.retryAt.IsZero():
		return e.retryAt
	case !e.notified:
		return e.nextRun.Add(-leadDuration)
	default:
		return e.nextRun
	}
}

func (e *entry) advance(now time.Time) {
	from := e.nextRun
	if now.After(from) {
		from = now
	}
	e.nextRun = e.schedule.Next(from)
	e.notified = false
	e.attempts = 0
	e.retryAt = time.Time{}
	e.lastErr = ""
}

type Scheduler struct {
	exec Executor
	hub  *events.EventHub

	parser         cron.Parser
	retryInterval  time.Duration
	settleInterval time.Duration

	mu      sync.Mutex
	entries []*entry
	running bool

	controlCh chan struct{}
	stopCh    chan struct{}
}

func NewScheduler(exec Executor, hub *events.EventHub) *Scheduler {
	if exec == nil {
		panic("executor cannot be nil")
	}
	return &Scheduler{
		exec:           exec,
		hub:            hub,
		parser:         cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		retryInterval:  preCheckInterval,
		settleInterval: settleInterval,
		controlCh:      make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
}

// Load replaces every job. Nothing changes if any job is invalid.
func (s *Scheduler) Load(jobs []Job) error {
	now := time.Now()
	seen := map[string]bool{}
	entries := make([]*entry, 0, len(jobs))

	for _, j := range jobs {
		if j.Name == "" {
			return pkgerrors.New("schedule job without name")
		}
		if seen[j.Name] {
			return pkgerrors.Errorf("duplicate schedule job %q", j.Name)
		}
		seen[j.Name] = true

		sh, err := s.parser.Parse(j.Cron)
		if err != nil {
			return pkgerrors.Wrapf(err, "job %q", j.Name)
		}
		if len(j.Commands) == 0 {
			return pkgerrors.Errorf("job %q has no commands", j.Name)
		}
		cmds := make([]door.Command, 0, len(j.Commands))
		for _, c := range j.Commands {
			cmd, err := door.ParseCommand(c)
			if err != nil {
				return pkgerrors.Wrapf(err, "job %q", j.Name)
			}
			cmds = append(cmds, cmd)
		}
		entries = append(entries, &entry{job: j, commands: cmds, schedule: sh, nextRun: sh.Next(now)})
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.poke()

	logrus.WithField("jobs", len(entries)).Debug("schedule loaded")
	return nil
}

// Skip skips the next run of the named job.
func (s *Scheduler) Skip(name string) error {
	s.mu.Lock()
	e := s.find(name)
	if e == nil {
		s.mu.Unlock()
		return pkgerrors.Errorf("no schedule job %q", name)
	}
	e.advance(e.nextRun)
	next := e.nextRun
	s.mu.Unlock()
	s.poke()

	logrus.WithFields(logrus.Fields{
		"job":     name,
		"nextRun": next.Format(time.DateTime),
	}).Info("scheduled run skipped")
	return nil
}

func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, JobStatus{
			Name:     e.job.Name,
			Cron:     e.job.Cron,
			Commands: e.job.Commands,
			NextRun:  e.nextRun,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.run()
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) find(name string) *entry {
	for _, e := range s.entries {
		if e.job.Name == name {
			return e
		}
	}
	return nil
}

// poke wakes the runner to recompute its timer.
func (s *Scheduler) poke() {
	select {
	case s.controlCh <- struct{}{}:
	default:
	}
}

// earliest returns the entry that is due first.
func (s *Scheduler) earliest() (*entry, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		first *entry
		at    time.Time
	)
	for _, e := range s.entries {
		if d := e.due(); first == nil || d.Before(at) {
			first, at = e, d
		}
	}
	return first, at
}

func (s *Scheduler) run() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		e, at := s.earliest()
		wait := idleWait
		if e != nil {
			wait = max(time.Until(at), 0)
		}
		timer := time.NewTimer(wait)

		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-s.controlCh:
			timer.Stop()
		case <-timer.C:
			if e != nil {
				s.fire(e)
			}
		}
	}
}

func (s *Scheduler) fire(e *entry) {
	now := time.Now()

	s.mu.Lock()
	if s.find(e.job.Name) != e {
		// replaced by a reload while the timer was pending
		s.mu.Unlock()
		return
	}
	if !e.notified && e.retryAt.IsZero() && now.Before(e.nextRun) {
		e.notified = true
		runAt := e.nextRun
		s.mu.Unlock()
		logrus.Debugf("upcoming scheduled job %s at %s", e.job.Name, runAt.Format(time.DateTime))
		s.notify(events.ScheduleUpcoming, e.job.Name, runAt, "")
		return
	}
	e.notified = true
	s.mu.Unlock()

	busy, err := s.exec.Busy()
	if err == nil && busy {
		err = pkgerrors.New("a learning session is in progress")
	}
	if err != nil {
		s.mu.Lock()
		first := e.lastErr != err.Error()
		e.lastErr = err.Error()
		e.attempts++
		giveUp := e.attempts > preCheckMaxTimes
		if giveUp {
			e.advance(now)
		} else {
			e.retryAt = now.Add(s.retryInterval)
		}
		attempts := e.attempts
		s.mu.Unlock()

		if first {
			s.notify(events.ScheduleError, e.job.Name, time.Time{}, fmt.Sprintf("precheck failed: %v", err))
		}
		if giveUp {
			logrus.WithField("job", e.job.Name).Warnf("precheck failed %d times, run skipped", preCheckMaxTimes)
			s.notify(events.ScheduleError, e.job.Name, time.Time{}, "run skipped")
			return
		}
		logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, preCheckMaxTimes, err, s.retryInterval)
		return
	}

	s.mu.Lock()
	cmds := e.commands
	name := e.job.Name
	e.advance(now)
	s.mu.Unlock()

	logrus.WithField("job", name).Info("running scheduled job")
	go s.runCommands(name, cmds)
}

// runCommands executes the job's commands in order. After a motion command
// the next one waits until the door is at rest, so CLOSE then LOCK locks a
// closed door instead of stopping it halfway.
func (s *Scheduler) runCommands(name string, cmds []door.Command) {
	for i, cmd := range cmds {
		res, err := s.exec.ExecuteScheduled(cmd)
		if err != nil {
			s.notify(events.ScheduleError, name, time.Time{}, fmt.Sprintf("task failed: %v", err))
			return
		}
		log := logrus.WithFields(logrus.Fields{
			"job":     name,
			"command": cmd,
			"result":  res,
		})
		if res.Rejected() {
			log.Warn("scheduled command refused")
			s.notify(events.ScheduleError, name, time.Time{}, fmt.Sprintf("%s refused: %s", cmd, res))
			continue
		}
		log.Info("scheduled command handled")

		if cmd.IsMotion() && i < len(cmds)-1 {
			if err := s.waitSettled(); err != nil {
				s.notify(events.ScheduleError, name, time.Time{}, fmt.Sprintf("task failed: %v", err))
				return
			}
		}
	}
}

// waitSettled polls the controller until the door stops moving or the
// travel time plus a margin has passed.
func (s *Scheduler) waitSettled() error {
	snap, err := s.exec.Snapshot()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(time.Duration(snap.TravelTime) + settleMargin)
	for snap.Position.Moving() {
		if time.Now().After(deadline) {
			return pkgerrors.Errorf("door still %s after %s", snap.Position, time.Duration(snap.TravelTime)+settleMargin)
		}
		select {
		case <-s.stopCh:
			return pkgerrors.New("scheduler stopped")
		case <-time.After(s.settleInterval):
		}
		if snap, err = s.exec.Snapshot(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) notify(name, job string, runAt time.Time, msg string) {
	ev := events.ScheduleEvent{Job: job, Message: msg}
	if !runAt.IsZero() {
		ev.RunAt = runAt.Unix()
	}
	s.hub.Publish(name, ev)
}
