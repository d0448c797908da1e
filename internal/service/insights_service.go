package service

import (
	"context"
	"sort"
	"time"

	"schedfy/internal/domain"
	"schedfy/internal/models"

	"github.com/rs/zerolog"
)

// Insights is an aggregated view of an entity's bookings over a period.
type Insights struct {
	EntityID         int64            `json:"entity_id"`
	From             string           `json:"from"`
	To               string           `json:"to"`
	TotalBookings    int              `json:"total_bookings"`
	Cancelled        int              `json:"cancelled"`
	Completed        int              `json:"completed"`
	CancellationRate float64          `json:"cancellation_rate"`
	PeakHours        []HourLoad       `json:"peak_hours"`
	BusiestWeekday   string           `json:"busiest_weekday"`
	RevenueByService map[string]int64 `json:"revenue_by_service"` // minor units, completed only
	Currency         string           `json:"currency,omitempty"`
}

// HourLoad counts active bookings starting within one local hour.
type HourLoad struct {
	Hour  string `json:"hour"` // "HH:00"
	Count int    `json:"count"`
}

// InsightsService computes booking statistics for the back office.
type InsightsService struct {
	repo   domain.Repository
	loc    *time.Location
	logger *zerolog.Logger
}

func NewInsightsService(repo domain.Repository, loc *time.Location, logger *zerolog.Logger) *InsightsService {
	if loc == nil {
		loc = time.UTC
	}
	return &InsightsService{repo: repo, loc: loc, logger: logger}
}

// BuildInsights aggregates bookings with starts in [from, to] (local dates,
// inclusive). Cancelled bookings count toward the cancellation rate but are
// excluded from load and revenue.
func (s *InsightsService) BuildInsights(ctx context.Context, entityID int64, from, to string) (*Insights, error) {
	start, err := time.ParseInLocation("2006-01-02", from, s.loc)
	if err != nil {
		return nil, err
	}
	end, err := time.ParseInLocation("2006-01-02", to, s.loc)
	if err != nil {
		return nil, err
	}
	end = end.AddDate(0, 0, 1)

	bookings, err := s.repo.GetBookingsBetween(ctx, entityID, start, end)
	if err != nil {
		return nil, err
	}

	out := &Insights{
		EntityID:         entityID,
		From:             from,
		To:               to,
		TotalBookings:    len(bookings),
		RevenueByService: make(map[string]int64),
	}

	hourCounts := make(map[int]int)
	weekdayCounts := make(map[time.Weekday]int)

	for i := range bookings {
		b := &bookings[i]
		switch b.Status {
		case models.StatusCancelled:
			out.Cancelled++
			continue
		case models.StatusCompleted:
			out.Completed++
			out.RevenueByService[b.ServiceName] += b.Price.Amount
			if out.Currency == "" {
				out.Currency = b.Price.Currency
			}
		}

		local := b.StartTime.In(s.loc)
		hourCounts[local.Hour()]++
		weekdayCounts[local.Weekday()]++
	}

	if out.TotalBookings > 0 {
		out.CancellationRate = float64(out.Cancelled) / float64(out.TotalBookings)
	}

	out.PeakHours = topHours(hourCounts, 3)

	best, bestCount := time.Weekday(-1), 0
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if weekdayCounts[wd] > bestCount {
			best, bestCount = wd, weekdayCounts[wd]
		}
	}
	if bestCount > 0 {
		out.BusiestWeekday = best.String()
	}

	return out, nil
}

// topHours returns the n busiest hours, busiest first, ties by earlier hour.
func topHours(counts map[int]int, n int) []HourLoad {
	loads := make([]HourLoad, 0, len(counts))
	for hour, count := range counts {
		loads = append(loads, HourLoad{Hour: hourLabel(hour), Count: count})
	}
	sort.Slice(loads, func(i, j int) bool {
		if loads[i].Count != loads[j].Count {
			return loads[i].Count > loads[j].Count
		}
		return loads[i].Hour < loads[j].Hour
	})
	if len(loads) > n {
		loads = loads[:n]
	}
	return loads
}

func hourLabel(hour int) string {
	return time.Date(0, 1, 1, hour, 0, 0, 0, time.UTC).Format("15:04")
}

// DailyLoad returns per-day booking counts for a period, for the export and
// utilization views.
func (s *InsightsService) DailyLoad(ctx context.Context, entityID int64, from, to string) (map[string]int, error) {
	start, err := time.ParseInLocation("2006-01-02", from, s.loc)
	if err != nil {
		return nil, err
	}
	end, err := time.ParseInLocation("2006-01-02", to, s.loc)
	if err != nil {
		return nil, err
	}
	end = end.AddDate(0, 0, 1)

	byDay, err := s.repo.GetDailyBookings(ctx, entityID, start, end, s.loc)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(byDay))
	for day, list := range byDay {
		active := 0
		for i := range list {
			if list[i].Occupies() {
				active++
			}
		}
		out[day] = active
	}
	return out, nil
}
