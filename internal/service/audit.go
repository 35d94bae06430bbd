package service

import (
	"context"
	"sort"

	"github.com/atinyakov/estakaadi/internal/models"
	"go.uber.org/zap"
)

type ctxKey string

const ipAddressKey ctxKey = "ipAddress"

// WithIPAddress returns a context whose audit entries record ip as the
// client address.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipAddressKey, ip)
}

// IPAddressFromContext returns the address stored by WithIPAddress, or an
// empty string.
func IPAddressFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ipAddressKey).(string)
	return ip
}

// addLog appends an audit entry. Failures are logged and swallowed so that
// auditing never fails the operation being audited.
func (s *DataService) addLog(ctx context.Context, action, details, actor string) {
	entry := models.LogEntry{
		ID:        s.ids.NewID(string(models.Logs)),
		Timestamp: s.ids.Stamp(),
		Actor:     actorOrSystem(actor),
		Action:    action,
		Details:   details,
		IPAddress: IPAddressFromContext(ctx),
	}
	if err := s.backend.AppendLog(ctx, entry, s.logLimit); err != nil {
		s.log.Warn("failed to add audit entry",
			zap.String("action", action),
			zap.String("actor", entry.Actor),
			zap.Error(err),
		)
	}
}

// Logs returns audit entries newest first, narrowed by filter.
func (s *DataService) Logs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, error) {
	var (
		items []models.Entity
		err   error
	)
	switch {
	case filter.Actor != "":
		items, err = s.backend.FindBy(ctx, models.Logs, "actor", filter.Actor)
	case filter.Action != "":
		items, err = s.backend.FindBy(ctx, models.Logs, "action", filter.Action)
	default:
		items, err = s.backend.GetAll(ctx, models.Logs)
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.LogEntry, 0, len(items))
	for _, e := range items {
		l := models.LogFromEntity(e)
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
