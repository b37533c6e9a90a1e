package proof

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/models"
)

// cronParser accepts 5-field expressions and descriptors such as "@every 5m".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a refresh schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("proof: schedule %q: %w", expr, err)
	}
	return s, nil
}

// Scheduler periodically re-issues proofs for endpoints carrying traffic.
type Scheduler struct {
	issuer   *Issuer
	schedule cron.Schedule
}

// NewScheduler returns a Scheduler firing on expr.
func NewScheduler(issuer *Issuer, expr string) (*Scheduler, error) {
	s, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return &Scheduler{issuer: issuer, schedule: s}, nil
}

// Run refreshes proofs on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Until(s.schedule.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			n, err := s.RefreshAll()
			if err != nil {
				log.Printf("proof: refresh: %v", err)
			} else {
				log.Printf("proof: refreshed %d endpoint(s)", n)
			}
			timer.Reset(time.Until(s.schedule.Next(time.Now())))
		}
	}
}

// RefreshAll re-issues proofs for OPEN, FULL and CLOSED endpoints and
// returns how many were attested. Endpoints that fail are logged and skipped.
func (s *Scheduler) RefreshAll() (int, error) {
	var n int
	for _, status := range []models.EndpointStatus{models.EndpointOpen, models.EndpointFull, models.EndpointClosed} {
		eps, err := endpoint.List(s.issuer.db, endpoint.ListFilters{Status: status})
		if err != nil {
			return n, err
		}
		for _, ep := range eps {
			if _, err := s.issuer.Refresh(ep.EndpointID); err != nil {
				log.Printf("proof: %s: %v", ep.EndpointID, err)
				continue
			}
			n++
		}
	}
	return n, nil
}
