// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package housekeeping runs the periodic background jobs the bus needs
// while a server process is up: sweeping stale BLOB cache entries and
// re-announcing the service after an ephemeral port rebind.
package housekeeping

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/indigo-astronomy/indigo-bus/internal/blob"
	"github.com/indigo-astronomy/indigo-bus/pkg/log"
)

// Frequency configures the execution intervals of the background jobs.
type Frequency struct {
	// BlobSweep is how often stale (unregistered) BLOB cache entries are
	// reaped. Defaults to '5m'.
	BlobSweep string `json:"blob-sweep"`
}

const DefaultBlobSweep = 5 * time.Minute

// Announcer re-announces the server's presence after a rebind. In the
// source this is mDNS/Bonjour; that transport is out of scope here, so
// the only implementation shipped is noopAnnouncer.
type Announcer interface {
	Reannounce(port int) error
}

type noopAnnouncer struct{}

func (noopAnnouncer) Reannounce(int) error { return nil }

// NoopAnnouncer is used when no service-discovery mechanism is configured.
var NoopAnnouncer Announcer = noopAnnouncer{}

var s gocron.Scheduler

// Start creates and starts the gocron scheduler, registering the BLOB
// cache sweep job. cache may be nil, in which case the sweep job is
// skipped (useful for tests that don't stand up a full server).
func Start(freq Frequency, cache *blob.Cache) error {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		log.Errorf("housekeeping: could not create scheduler: %v", err)
		return err
	}

	if cache != nil {
		interval, err := parseDuration(freq.BlobSweep, DefaultBlobSweep)
		if err != nil {
			return err
		}
		if _, err := s.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				n := cache.Sweep()
				if n > 0 {
					log.Debugf("housekeeping: swept %d stale blob cache entries", n)
				}
			}),
		); err != nil {
			log.Errorf("housekeeping: could not register blob sweep job: %v", err)
			return err
		}
	}

	s.Start()
	return nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warnf("housekeeping: could not parse duration %q, using default %s", s, def)
		return def, err
	}
	return d, nil
}

// Shutdown stops the scheduler.
func Shutdown() {
	if s != nil {
		s.Shutdown()
	}
}
