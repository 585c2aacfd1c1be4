package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/helpers"
)

type Trigger struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// SyncScheduler fires each trigger on its own ticker. Runs are not mutually
// exclusive, even for the same trigger. A run that fails or panics is logged
// and the trigger keeps firing.
type SyncScheduler struct {
	triggers []Trigger

	loops      sync.WaitGroup
	inFlight   sync.WaitGroup
	stopLoops  context.CancelFunc
	cancelWork context.CancelFunc
}

func NewSyncScheduler(triggers ...Trigger) *SyncScheduler {
	return &SyncScheduler{triggers: triggers}
}

// Start launches the trigger loops. Runs receive a context that outlives ctx
// so that Stop can let them finish.
func (ss *SyncScheduler) Start(ctx context.Context) {
	loopCtx, stopLoops := context.WithCancel(ctx)
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	ss.stopLoops = stopLoops
	ss.cancelWork = cancelWork

	for _, trigger := range ss.triggers {
		if trigger.Interval <= 0 {
			helpers.Logger.Warnln(fmt.Sprintf("trigger %s has no interval, not scheduled", trigger.Name))
			continue
		}
		ss.loops.Add(1)
		go ss.loop(loopCtx, workCtx, trigger)
	}
}

func (ss *SyncScheduler) loop(loopCtx context.Context, workCtx context.Context, trigger Trigger) {
	defer ss.loops.Done()
	ticker := time.NewTicker(trigger.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			ss.fire(workCtx, trigger)
		}
	}
}

func (ss *SyncScheduler) fire(ctx context.Context, trigger Trigger) {
	ss.inFlight.Add(1)
	go func() {
		defer ss.inFlight.Done()
		defer func() {
			if r := recover(); r != nil {
				helpers.SchedulerTickErrors.WithLabelValues(trigger.Name).Inc()
				helpers.Logger.Errorln(string(debug.Stack()))
				helpers.Logger.Notify(fmt.Sprintf("%s tick panicked: %+v", trigger.Name, r))
			}
		}()

		if err := trigger.Run(ctx); err != nil {
			helpers.SchedulerTickErrors.WithLabelValues(trigger.Name).Inc()
			helpers.Logger.WithFields(map[string]interface{}{"trigger": trigger.Name}).Errorln("tick failed: " + err.Error())
		}
	}()
}

// Stop stops firing new runs and waits up to drain for running ones. Runs still
// going after drain have their context canceled. It reports whether every run
// finished in time.
func (ss *SyncScheduler) Stop(drain time.Duration) bool {
	if ss.stopLoops == nil {
		return true
	}
	ss.stopLoops()
	ss.loops.Wait()

	done := make(chan struct{})
	go func() {
		ss.inFlight.Wait()
		close(done)
	}()

	timer := time.NewTimer(drain)
	defer timer.Stop()
	select {
	case <-done:
		ss.cancelWork()
		return true
	case <-timer.C:
		ss.cancelWork()
		helpers.Logger.Warnln(fmt.Sprintf("scheduler drain timed out after %s, abandoning running ticks", drain))
		return false
	}
}
