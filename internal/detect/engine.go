package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"logguard/internal/audit"
	"logguard/internal/config"
	"logguard/internal/explain"
	"logguard/internal/feature"
	"logguard/internal/metrics"
	"logguard/internal/session"
	"logguard/internal/state"
	"logguard/internal/types"
)

// Alert types raised by the engine
const (
	AlertNewPattern = "attack_pattern"
	AlertEscalation = "severity_escalation"
)

// errRaced rolls back a group whose rows were counted by a concurrent run
var errRaced = errors.New("rows already counted")

// Engine is the core detection engine
type Engine struct {
	store     *state.Store
	audit     *audit.Logger
	explainer explain.Explainer
	cfg       types.DetectionConfig
	allow     map[netip.Addr]bool
	now       func() time.Time
}

// Options narrows one run
type Options struct {
	AttackType string // id or name; empty scans every attack type
	SourceIP   string
}

// Report is what one run found
type Report struct {
	RunID           string                 `json:"run_id"`
	At              time.Time              `json:"at"`
	PendingRows     int                    `json:"pending_rows"`
	Groups          int                    `json:"groups"`
	BelowThreshold  int                    `json:"below_threshold"`
	Allowlisted     int                    `json:"allowlisted"`
	Classifications []types.Classification `json:"classifications"`
}

// ApplyOverrides replaces the window and/or threshold for every attack type.
// Zero values leave the configured ones in place.
func ApplyOverrides(d types.DetectionConfig, window time.Duration, threshold int) types.DetectionConfig {
	rules := make([]types.DetectionRule, len(d.Rules))
	copy(rules, d.Rules)
	d.Rules = rules
	if window != 0 {
		d.Window = window
		for i := range d.Rules {
			d.Rules[i].Window = 0
		}
	}
	if threshold != 0 {
		d.Threshold = threshold
		for i := range d.Rules {
			d.Rules[i].Threshold = 0
		}
	}
	return d
}

// NewEngine creates a new detection engine. Window and threshold must be set.
func NewEngine(store *state.Store, auditLog *audit.Logger, explainer explain.Explainer, cfg types.DetectionConfig) (*Engine, error) {
	if err := config.ValidateDetection(cfg); err != nil {
		return nil, state.Invalidf("%v", err)
	}
	allow := make(map[netip.Addr]bool, len(cfg.Allowlist))
	for _, ip := range cfg.Allowlist {
		addr, err := netip.ParseAddr(strings.TrimSpace(ip))
		if err != nil {
			return nil, state.Invalidf("allowlist: invalid IP %q", ip)
		}
		allow[addr] = true
	}
	if explainer == nil {
		explainer = explain.NewTemplateExplainer()
	}
	return &Engine{
		store:     store,
		audit:     auditLog,
		explainer: explainer,
		cfg:       cfg,
		allow:     allow,
		now:       time.Now,
	}, nil
}

// SetClock replaces the clock that anchors the window
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ruleFor returns the window and threshold for an attack type
func (e *Engine) ruleFor(attackType string) (time.Duration, int) {
	window, threshold := e.cfg.Window, e.cfg.Threshold
	for _, r := range e.cfg.Rules {
		if !strings.EqualFold(strings.TrimSpace(r.AttackType), attackType) {
			continue
		}
		if r.Window > 0 {
			window = r.Window
		}
		if r.Threshold > 0 {
			threshold = r.Threshold
		}
	}
	return window, threshold
}

// ObservedSeverity grades a hit count against its threshold
func ObservedSeverity(hits, threshold int) types.Severity {
	switch {
	case hits >= 3*threshold:
		return types.SeverityCritical
	case hits >= 2*threshold:
		return types.SeverityHigh
	case 2*hits >= 3*threshold:
		return types.SeverityMedium
	}
	return types.SeverityLow
}

func (e *Engine) allowlisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	return err == nil && e.allow[addr]
}

type scope struct {
	at        state.AttackType
	window    time.Duration
	threshold int
}

// Run scans pending rows inside each attack type's window and classifies every
// (source IP, attack type) whose count meets the threshold.
func (e *Engine) Run(ctx context.Context, sess *session.Session, opts Options) (*Report, error) {
	if sess == nil {
		sess = session.Anonymous()
	}
	sourceIP := ""
	if opts.SourceIP != "" {
		addr, err := netip.ParseAddr(strings.TrimSpace(opts.SourceIP))
		if err != nil {
			return nil, state.Invalidf("invalid IP address %q", opts.SourceIP)
		}
		sourceIP = addr.String()
	}

	var ats []state.AttackType
	if opts.AttackType != "" {
		at, err := e.store.FindAttackType(ctx, opts.AttackType)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return nil, fmt.Errorf("attack type %q does not exist: %w", opts.AttackType, state.ErrReferential)
			}
			return nil, err
		}
		ats = []state.AttackType{*at}
	} else {
		all, err := e.store.ListAttackTypes(ctx)
		if err != nil {
			return nil, err
		}
		ats = all
	}

	now := e.now().UTC()
	report := &Report{RunID: sess.RunID, At: now, Classifications: []types.Classification{}}
	acc := feature.NewAccumulator(0)
	scopes := make(map[uint]scope, len(ats))

	for _, at := range ats {
		window, threshold := e.ruleFor(at.Name)
		scopes[at.ID] = scope{at: at, window: window, threshold: threshold}

		rows, err := e.store.PendingLogs(ctx, now.Add(-window), at.ID, sourceIP)
		if err != nil {
			return nil, err
		}
		report.PendingRows += len(rows)
		for _, row := range rows {
			acc.Add(feature.Key{IP: row.SourceIP, AttackTypeID: at.ID}, row.ID, row.Timestamp)
		}
	}
	if n := acc.Evicted(); n > 0 {
		slog.Warn("too many sources in window, some left for the next run", "evicted", n)
	}

	for _, g := range acc.Groups() {
		report.Groups++
		sc := scopes[g.AttackTypeID]
		if e.allowlisted(g.IP) {
			report.Allowlisted++
			continue
		}
		if g.Count < sc.threshold {
			report.BelowThreshold++
			continue
		}

		c, err := e.classify(ctx, sess, sc, g)
		if errors.Is(err, errRaced) {
			slog.Warn("rows counted by another run", "ip", g.IP, "attack_type", sc.at.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to classify %s (%s): %w", g.IP, sc.at.Name, err)
		}
		report.Classifications = append(report.Classifications, *c)
	}

	metrics.DetectionRuns.Inc()
	slog.Info("detection run complete",
		"run", report.RunID,
		"pending", report.PendingRows,
		"groups", report.Groups,
		"classified", len(report.Classifications))
	return report, nil
}

// classify folds one group into its pattern: rows are marked counted, the pattern
// upserted and an alert raised for new or escalated patterns, all in one transaction.
func (e *Engine) classify(ctx context.Context, sess *session.Session, sc scope, g feature.Group) (*types.Classification, error) {
	var c *types.Classification
	err := e.store.Transaction(ctx, func(tx *state.Store) error {
		n, err := tx.MarkCounted(ctx, g.LogIDs)
		if err != nil {
			return err
		}
		hits := int(n)
		if hits < sc.threshold {
			return errRaced
		}

		observed := ObservedSeverity(hits, sc.threshold)
		res, err := tx.UpsertPattern(ctx, state.Observation{
			SourceIP:     g.IP,
			AttackTypeID: sc.at.ID,
			Category:     sc.at.Category,
			Severity:     observed,
			Count:        n,
			FirstSeen:    g.FirstSeen,
			LastSeen:     g.LastSeen,
		})
		if err != nil {
			return err
		}
		p := res.Pattern

		c = &types.Classification{
			SourceIP:         g.IP,
			AttackTypeID:     sc.at.ID,
			AttackType:       sc.at.Name,
			Category:         sc.at.Category,
			Hits:             hits,
			Window:           sc.window,
			Threshold:        sc.threshold,
			FirstSeen:        g.FirstSeen,
			LastSeen:         g.LastSeen,
			ObservedSeverity: observed,
			StoredSeverity:   p.Severity,
			EventCount:       p.EventCount,
			PatternID:        p.ID,
			NewPattern:       res.Created(),
		}

		auditLog := e.audit.With(tx)
		action := "update"
		if res.Created() {
			action = "create"
		}
		if err := auditLog.Record(ctx, sess, action, "pattern", p.ID, res.Previous.Snapshot(), p.Snapshot()); err != nil {
			return err
		}

		if !res.Created() && !res.Escalated() {
			return nil
		}
		exp, err := e.explainer.Explain(ctx, c)
		if err != nil {
			return err
		}
		alertType := AlertNewPattern
		if !res.Created() {
			alertType = AlertEscalation
		}
		alert := &state.Alert{
			PatternID:   &p.ID,
			AlertType:   alertType,
			Severity:    p.Severity,
			SourceIP:    g.IP,
			Category:    sc.at.Category,
			Title:       exp.Title,
			Description: exp.Description,
		}
		if err := tx.CreateAlert(ctx, alert); err != nil {
			return err
		}
		c.AlertID = alert.ID
		return auditLog.Record(ctx, sess, "create", "alert", alert.ID, nil, alert.Snapshot())
	})
	if err != nil {
		return nil, err
	}

	metrics.Classifications.WithLabelValues(c.AttackType, string(c.StoredSeverity)).Inc()
	if c.AlertID != 0 {
		metrics.AlertsCreated.WithLabelValues(string(c.StoredSeverity)).Inc()
	}
	return c, nil
}
