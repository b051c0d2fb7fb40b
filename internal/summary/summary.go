// Package summary maintains the per-location consultation overview shown on
// the home surface. It aggregates backend consultation rows into counts and
// refreshes them on a cron cadence.
package summary

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ortholink/callbridge/internal/models"
	"github.com/ortholink/callbridge/internal/scheduler"
)

// DefaultRefreshExpr refreshes the summary every 15 minutes.
const DefaultRefreshExpr = "*/15 * * * *"

// DefaultFetchTimeout bounds one consultation fetch.
const DefaultFetchTimeout = 15 * time.Second

// ConsultationSource fetches the consultation rows for a given day
// (formatted YYYY-MM-DD).
type ConsultationSource interface {
	GetConsultations(ctx context.Context, date string) ([]models.Consultation, error)
}

// Service caches the aggregated consultation summary.
type Service struct {
	source ConsultationSource

	mu        sync.RWMutex
	stats     []models.LocationStats
	refreshed time.Time

	jobID scheduler.JobID
	sched *scheduler.Scheduler
}

// NewService creates a summary service over the given source.
func NewService(source ConsultationSource) *Service {
	return &Service{source: source}
}

// Aggregate folds consultation rows into per-location counts. Pending
// includes consultations still under evaluation; rows with other statuses
// count only toward the total. Locations sort by total descending, ties by
// name for stable output.
func Aggregate(consultations []models.Consultation) []models.LocationStats {
	byLocation := make(map[string]*models.LocationStats)
	for _, c := range consultations {
		loc := c.Location
		if loc == "" {
			loc = "Unknown"
		}
		stats, ok := byLocation[loc]
		if !ok {
			stats = &models.LocationStats{Location: loc}
			byLocation[loc] = stats
		}
		stats.Total++
		switch c.Status {
		case models.ConsultationPending, models.ConsultationUnderEvaluation:
			stats.Pending++
		case models.ConsultationCompleted:
			stats.Completed++
		}
	}

	out := make([]models.LocationStats, 0, len(byLocation))
	for _, stats := range byLocation {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Location < out[j].Location
	})
	return out
}

// Refresh fetches consultations and rebuilds the cached summary. On fetch
// failure the previous summary is kept.
func (s *Service) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	defer cancel()

	consultations, err := s.source.GetConsultations(ctx, time.Now().Format("2006-01-02"))
	if err != nil {
		slog.Warn("Summary refresh failed, keeping previous data", "error", err)
		return err
	}

	stats := Aggregate(consultations)
	s.mu.Lock()
	s.stats = stats
	s.refreshed = time.Now()
	s.mu.Unlock()
	slog.Debug("Summary refreshed", "locations", len(stats), "consultations", len(consultations))
	return nil
}

// Stats returns the cached summary and its refresh time.
func (s *Service) Stats() ([]models.LocationStats, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LocationStats, len(s.stats))
	copy(out, s.stats)
	return out, s.refreshed
}

// StartPeriodicRefresh performs an immediate refresh and schedules recurring
// ones on sched using expr (DefaultRefreshExpr when empty).
func (s *Service) StartPeriodicRefresh(ctx context.Context, sched *scheduler.Scheduler, expr string) error {
	if expr == "" {
		expr = DefaultRefreshExpr
	}
	if err := s.Refresh(ctx); err != nil {
		slog.Warn("Summary initial refresh failed", "error", err)
	}
	id, err := sched.AddJob(expr, func() {
		_ = s.Refresh(context.Background())
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.jobID = id
	s.sched = sched
	s.mu.Unlock()
	return nil
}

// Stop cancels the recurring refresh, if one was started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		s.sched.Remove(s.jobID)
		s.sched = nil
	}
}
