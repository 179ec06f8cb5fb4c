package store

import (
	"context"

	"github.com/imamik/hubspoke/internal/spoke"
)

// Stats summarizes the stored deployments.
type Stats struct {
	Total    int                  `json:"total"`
	ByStatus map[spoke.Status]int `json:"by_status"`
	Latest   *spoke.Deployment    `json:"latest,omitempty"`
}

// ComputeStats counts records per status and finds the most recently created one.
func ComputeStats(ctx context.Context, s Store) (Stats, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: len(all), ByStatus: make(map[spoke.Status]int, len(spoke.AllStatuses))}
	for _, st := range spoke.AllStatuses {
		stats.ByStatus[st] = 0
	}
	for _, d := range all {
		stats.ByStatus[d.Status]++
		if stats.Latest == nil || d.CreatedAt.After(stats.Latest.CreatedAt) {
			stats.Latest = d
		}
	}
	return stats, nil
}
