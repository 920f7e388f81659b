package liveness

import (
	"context"
	"math"
	"time"

	"github.com/Krish-Depani/session-admission/metrics"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type ActiveUser struct {
	UserID       string    `json:"userId"`
	LiveCount    int       `json:"liveCount"`
	LastActivity time.Time `json:"lastActivity"`
	InstanceIDs  []string  `json:"instanceIds"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type Summary struct {
	CurrentConcurrentUsers int64 `json:"currentConcurrentUsers"`
	MaxConcurrentUsers     int   `json:"maxConcurrentUsers"`
	AvailableSlots         int64 `json:"availableSlots"`
	TimeoutWindowMinutes   int   `json:"timeoutWindowMinutes"`
	LiveSessions           int64 `json:"liveSessions"`
}

type ActiveSessionsView struct {
	Users      []ActiveUser `json:"users"`
	Pagination Pagination   `json:"pagination"`
	Summary    Summary      `json:"summary"`
	Reaped     int          `json:"reaped"`
}

// ActiveSessions reaps expired rows and then reads the live state from
// the same cutoff. Reaping is a documented side effect of this read.
func (s *Service) ActiveSessions(ctx context.Context, page, limit int) (*ActiveSessionsView, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	policy, err := s.resolver.Tenant(ctx)
	if err != nil {
		return nil, err
	}
	s.rememberPolicy(policy)

	cutoff := policy.Cutoff(s.now())
	reaped, err := s.Reap(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	offset := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		offset = (page - 1) * limit
	}
	groups, total, err := s.sessions.ListLiveUsers(ctx, cutoff, offset, limit)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.CountLiveSessions(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	users := make([]ActiveUser, 0, len(groups))
	for _, g := range groups {
		u := ActiveUser{
			UserID:      g.UserID,
			LiveCount:   len(g.Sessions),
			InstanceIDs: make([]string, 0, len(g.Sessions)),
		}
		for _, row := range g.Sessions {
			u.InstanceIDs = append(u.InstanceIDs, row.ClientInstanceID)
			if row.LastActivity.After(u.LastActivity) {
				u.LastActivity = row.LastActivity
			}
		}
		users = append(users, u)
	}

	available := int64(policy.GlobalLimit) - total
	if available < 0 {
		available = 0
	}

	metrics.LiveUsers.Set(float64(total))
	metrics.LiveSessions.Set(float64(sessions))

	return &ActiveSessionsView{
		Users: users,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
		Summary: Summary{
			CurrentConcurrentUsers: total,
			MaxConcurrentUsers:     policy.GlobalLimit,
			AvailableSlots:         available,
			TimeoutWindowMinutes:   int(policy.TimeoutWindow / time.Minute),
			LiveSessions:           sessions,
		},
		Reaped: reaped,
	}, nil
}
