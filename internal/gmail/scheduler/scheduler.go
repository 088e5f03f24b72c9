package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	DefaultInterval = 1 * time.Hour
	// DefaultWindow renews a watch a day before Gmail lets it lapse.
	DefaultWindow = 24 * time.Hour
)

// WatchRenewer is the part of the Gmail usecase the scheduler drives.
type WatchRenewer interface {
	RenewWatches(ctx context.Context, within time.Duration) (int, error)
}

// WatchRenewalScheduler periodically re-registers Gmail watches before they expire.
type WatchRenewalScheduler struct {
	renewer  WatchRenewer
	interval time.Duration
	window   time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatchRenewalScheduler creates a new scheduler. Zero durations use the defaults.
func NewWatchRenewalScheduler(renewer WatchRenewer, interval, window time.Duration) *WatchRenewalScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &WatchRenewalScheduler{
		renewer:  renewer,
		interval: interval,
		window:   window,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *WatchRenewalScheduler) Start() {
	log.Printf("[WatchScheduler] Starting watch renewal scheduler (interval: %s, window: %s)", s.interval, s.window)

	go func() {
		defer close(s.done)

		// Run immediately on start
		s.renewDue()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.renewDue()
			case <-s.stopChan:
				log.Println("[WatchScheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (s *WatchRenewalScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

func (s *WatchRenewalScheduler) renewDue() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	renewed, err := s.renewer.RenewWatches(ctx, s.window)
	if err != nil {
		log.Printf("[WatchScheduler] Error renewing watches: %v", err)
		return
	}
	if renewed > 0 {
		log.Printf("[WatchScheduler] Renewed %d Gmail watches", renewed)
	}
}
