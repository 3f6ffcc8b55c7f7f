package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/parley/pkg/domain"
)

// LogHooks returns lifecycle hooks writing one record per event. Claims and
// rule runs are logged at Debug, turns at Info and failed turns at Error.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnClaim: func(ctx context.Context, e *domain.ClaimEvent) {
			logger.DebugContext(ctx, "claim", "domain", e.Domain, "rule", e.Rule, "query", e.Query)
		},
		OnRuleRun: func(ctx context.Context, e *domain.RuleEvent) {
			logger.DebugContext(ctx, "rule_run", "domain", e.Domain, "rule", e.Rule, "ending", e.Ending)
		},
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "turn failed", "domain", e.Domain, "query", e.Query, "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "turn",
				"domain", e.Domain,
				"rule", e.Response.Rule,
				"understood", e.Understood,
				"duration", e.Duration,
			)
		},
		OnReset: func(ctx context.Context, e *domain.ResetEvent) {
			logger.DebugContext(ctx, "reset", "domain", e.Domain)
		},
	}
}
