package explain

import (
	"context"
	"fmt"
	"log/slog"

	"logguard/internal/types"
)

// Explanation is the human-readable text attached to an alert
type Explanation struct {
	Title       string
	Description string
}

// Explainer defines how classifications are turned into alert text
type Explainer interface {
	Explain(ctx context.Context, c *types.Classification) (Explanation, error)
}

// TemplateExplainer uses static string templates (offline, fast)
type TemplateExplainer struct{}

func NewTemplateExplainer() *TemplateExplainer {
	return &TemplateExplainer{}
}

func (e *TemplateExplainer) Explain(_ context.Context, c *types.Classification) (Explanation, error) {
	title := fmt.Sprintf("%s from %s", c.AttackType, c.SourceIP)
	if !c.NewPattern {
		title = fmt.Sprintf("%s from %s escalated to %s", c.AttackType, c.SourceIP, c.StoredSeverity)
	}
	desc := fmt.Sprintf("%d %s events from %s in the last %s (threshold %d). Pattern total: %d events, severity %s.",
		c.Hits, c.AttackType, c.SourceIP, c.Window, c.Threshold, c.EventCount, c.StoredSeverity)
	return Explanation{Title: title, Description: desc}, nil
}

// Fallback tries primary and falls back to the template when it fails
type Fallback struct {
	primary  Explainer
	template *TemplateExplainer
}

func WithFallback(primary Explainer) *Fallback {
	return &Fallback{primary: primary, template: NewTemplateExplainer()}
}

func (f *Fallback) Explain(ctx context.Context, c *types.Classification) (Explanation, error) {
	exp, err := f.primary.Explain(ctx, c)
	if err == nil {
		return exp, nil
	}
	slog.Warn("explainer failed, using template", "ip", c.SourceIP, "err", err)
	return f.template.Explain(ctx, c)
}

// New builds the explainer selected by mode ("template" or "llm")
func New(mode, url, model string, client HTTPDoer) Explainer {
	if mode == "llm" {
		return WithFallback(NewLLMExplainer(url, model, client))
	}
	return NewTemplateExplainer()
}
