// Package service runs the perpetual mirror loop: build a fresh remote
// client every cycle, mirror the configured sync roots, and handle the
// daily/weekly/hash-check cadences around that core operation.
package service

import (
	"time"

	"github.com/PieroV/mirror-to-onedrive/mirror"
	"github.com/rs/zerolog/log"
)

// Scheduler drives the perpetual sync loop. The zero value is not usable;
// build one with NewScheduler.
type Scheduler struct {
	// NewClient builds a freshly authenticated remote client. It is called
	// once per cycle so the OAuth2 session is always re-validated, rather
	// than reusing a single client across the service's whole lifetime.
	NewClient func() (mirror.RemoteClient, error)
	Store     mirror.Catalog
	Roots     []mirror.SyncRoot

	// RepeatInterval is the sleep between successful cycles. Default 4h.
	RepeatInterval time.Duration
	// FailSleep is the back-off sleep after a failed refresh or mirror
	// pass. Default 30m.
	FailSleep time.Duration
	// HashFrequency is how many days may elapse before a mirror pass is
	// forced to verify content hashes rather than relying on size/mtime.
	// Default 3.
	HashFrequency int

	now     func() time.Time
	sleep   func(time.Duration)
	onCycle func(cycleResult)
}

// NewScheduler builds a Scheduler with the documented default cadences.
func NewScheduler(newClient func() (mirror.RemoteClient, error), store mirror.Catalog, roots []mirror.SyncRoot) *Scheduler {
	return &Scheduler{
		NewClient:      newClient,
		Store:          store,
		Roots:          roots,
		RepeatInterval: 4 * time.Hour,
		FailSleep:      30 * time.Minute,
		HashFrequency:  3,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

type cycleResult struct {
	refreshed   bool
	hashChecked bool
	err         error
}

// Run executes the scheduler loop until stop is closed. Each iteration:
// builds a fresh client, compacts the catalog once a day, refreshes the
// whole catalog once a week, mirrors every cycle (forcing a content-hash
// check every HashFrequency days), and commits. A failed refresh or mirror
// pass is logged and followed by a shortened back-off sleep rather than
// terminating the loop.
func (s *Scheduler) Run(stop <-chan struct{}) {
	today := dayNumber(s.now())
	weekKey := weekNumber(s.now())

	// Long operations are deferred past the first iteration; the daily
	// compact is cheap enough that it is allowed to run immediately, so
	// its counter starts one day behind.
	lastCompactDay := today - 1
	hashesCheckedDay := today
	refreshedWeek := weekKey

	for {
		select {
		case <-stop:
			return
		default:
		}

		result := s.runCycle(&lastCompactDay, &hashesCheckedDay, &refreshedWeek)
		if s.onCycle != nil {
			s.onCycle(result)
		}

		wait := s.RepeatInterval
		if result.err != nil {
			wait = s.FailSleep
		}
		select {
		case <-stop:
			return
		default:
			s.sleep(wait)
		}
	}
}

func (s *Scheduler) runCycle(lastCompactDay, hashesCheckedDay, refreshedWeek *int) cycleResult {
	client, err := s.NewClient()
	if err != nil {
		log.Error().Err(err).Msg("Could not build an authenticated client for this cycle.")
		return cycleResult{err: err}
	}
	if err := client.Ping(); err != nil {
		log.Error().Err(err).Msg("Liveness probe failed; backing off.")
		return cycleResult{err: err}
	}

	today := dayNumber(s.now())
	thisWeek := weekNumber(s.now())

	if *lastCompactDay != today {
		if err := s.Store.Compact(); err != nil {
			log.Error().Err(err).Msg("Could not compact the catalog.")
		} else {
			*lastCompactDay = today
		}
	}

	if *refreshedWeek != thisWeek {
		if err := mirror.Populate(s.Store, client, s.Roots); err != nil {
			log.Error().Err(err).Msg("Catalog refresh failed; backing off.")
			return cycleResult{err: err}
		}
		*refreshedWeek = thisWeek
	}

	checkHashes := today-*hashesCheckedDay >= s.HashFrequency
	if err := mirror.Mirror(s.Store, client, s.Roots, checkHashes); err != nil {
		log.Error().Err(err).Msg("Mirror pass failed; backing off.")
		return cycleResult{err: err}
	}
	if checkHashes {
		*hashesCheckedDay = today
	}

	if err := s.Store.Commit(); err != nil {
		log.Error().Err(err).Msg("Could not commit catalog after cycle.")
	}

	return cycleResult{refreshed: *refreshedWeek == thisWeek, hashChecked: checkHashes}
}

func dayNumber(t time.Time) int {
	return t.Year()*1000 + t.YearDay()
}

func weekNumber(t time.Time) int {
	year, week := t.ISOWeek()
	return year*100 + week
}
