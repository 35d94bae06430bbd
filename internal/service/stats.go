package service

import (
	"context"

	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/models"
	"go.uber.org/zap"
)

// QuotaWarningRatio is the share of QuotaBytes that triggers a warning.
const QuotaWarningRatio = 0.8

// QuotaUsage is the payload of events.TopicQuotaWarning.
type QuotaUsage struct {
	Used    int64   `json:"used"`
	Quota   int64   `json:"quota"`
	Percent float64 `json:"percent"`
}

// Stats summarises the active backend.
func (s *DataService) Stats(ctx context.Context) (models.Stats, error) {
	return s.backend.Stats(ctx)
}

// checkQuota warns once when usage crosses QuotaWarningRatio and re-arms
// after it drops below. Backends that cannot measure size are skipped.
func (s *DataService) checkQuota(ctx context.Context) {
	if s.quota <= 0 {
		return
	}
	st, err := s.backend.Stats(ctx)
	if err != nil || st.TotalSize < 0 {
		return
	}
	usage := QuotaUsage{
		Used:    st.TotalSize,
		Quota:   s.quota,
		Percent: float64(st.TotalSize) / float64(s.quota) * 100,
	}

	s.quotaMu.Lock()
	over := float64(st.TotalSize) >= QuotaWarningRatio*float64(s.quota)
	fire := over && !s.quotaWarned
	s.quotaWarned = over
	s.quotaMu.Unlock()

	if !fire {
		return
	}
	s.log.Warn("storage usage above warning level",
		zap.String("used", models.FormatSize(usage.Used)),
		zap.String("quota", models.FormatSize(usage.Quota)),
		zap.Float64("percent", usage.Percent),
	)
	s.bus.Publish(events.Event{Topic: events.TopicQuotaWarning, Payload: usage})
}
