package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrQuotaExceeded = errors.New("monthly job quota exceeded")

// JobCounter counts jobs a user created since a point in time
type JobCounter interface {
	CountJobsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Quota enforces the monthly job allowance of a plan
type Quota struct {
	counter JobCounter
	now     func() time.Time
}

func NewQuota(counter JobCounter) *Quota {
	return &Quota{counter: counter, now: time.Now}
}

// Usage is the job count of the current period
type Usage struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Used        int
	Limit       int
}

// Remaining returns jobs left in the period, or -1 when unlimited
func (u Usage) Remaining() int {
	if u.Limit <= 0 {
		return -1
	}
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

// Current returns usage for userID against limit. A limit of 0 means unlimited.
func (q *Quota) Current(ctx context.Context, userID string, limit int) (Usage, error) {
	start := MonthStart(q.now())
	used, err := q.counter.CountJobsSince(ctx, userID, start)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read usage: %w", err)
	}
	return Usage{
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 1, 0),
		Used:        used,
		Limit:       limit,
	}, nil
}

// Check returns ErrQuotaExceeded when userID has no jobs left this month
func (q *Quota) Check(ctx context.Context, userID string, limit int) (Usage, error) {
	usage, err := q.Current(ctx, userID, limit)
	if err != nil {
		return usage, err
	}
	if usage.Remaining() == 0 {
		return usage, ErrQuotaExceeded
	}
	return usage, nil
}

// MonthStart is midnight UTC on the first day of t's month
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
