package main

import (
	"log"
	"time"
)

// Reaper periodically deletes refresh-token records whose expiry has
// passed. It is advisory cleanup: every read path re-checks expiry, so
// correctness never depends on a sweep having run.
type Reaper struct {
	db       DB
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func StartReaper(db DB, interval time.Duration) *Reaper {
	r := &Reaper{
		db:       db,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Reaper) run() {
	defer close(r.done)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			n, err := r.db.DeleteExpiredRefreshTokens(time.Now())
			if err != nil {
				log.Printf("reaper: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("reaper: removed %d expired refresh tokens", n)
			}
		case <-r.stop:
			return
		}
	}
}

// Stop halts the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}
