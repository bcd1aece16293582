package state

import (
	"context"
)

func (s *Store) CreateAlert(ctx context.Context, a *Alert) error {
	if a.AlertType == "" {
		return Invalidf("alert type is required")
	}
	if !a.Severity.Valid() {
		return Invalidf("unknown alert severity %q", a.Severity)
	}
	return wrap("failed to create alert", s.conn(ctx).Create(a).Error)
}

func (s *Store) GetAlert(ctx context.Context, id uint) (*Alert, error) {
	var a Alert
	if err := s.conn(ctx).First(&a, id).Error; err != nil {
		return nil, wrap("failed to get alert", err)
	}
	return &a, nil
}

// ListAlerts returns alerts newest first
func (s *Store) ListAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]Alert, error) {
	q := s.conn(ctx).Model(&Alert{})
	if unacknowledgedOnly {
		q = q.Where("is_acknowledged = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Alert
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, wrap("failed to list alerts", err)
	}
	return out, nil
}

// AcknowledgeAlert marks an alert seen by a user. Acknowledging twice keeps the first acknowledgement.
func (s *Store) AcknowledgeAlert(ctx context.Context, id uint, by *uint) (before, after *Alert, err error) {
	before, err = s.GetAlert(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if before.IsAcknowledged {
		return before, before, nil
	}
	fields := map[string]any{"is_acknowledged": true, "acknowledged_at": s.now()}
	if by != nil {
		fields["acknowledged_by"] = *by
	}
	if err := s.conn(ctx).Model(&Alert{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, nil, wrap("failed to acknowledge alert", err)
	}
	after, err = s.GetAlert(ctx, id)
	return before, after, err
}
