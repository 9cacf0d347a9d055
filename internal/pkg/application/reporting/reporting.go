package reporting

import (
	"context"
	"fmt"

	"github.com/diwise/threshold-alerts/internal/pkg/application/alerts"
	"github.com/diwise/threshold-alerts/internal/pkg/application/values"
	"github.com/diwise/threshold-alerts/pkg/types"
)

// Reporter answers read queries scoped by the role of the caller. Admins see
// every record while operators only see what they submitted themselves.
type Reporter interface {
	Values(ctx context.Context, principal types.Principal, offset, limit int) ([]types.Value, error)
	Alerts(ctx context.Context, principal types.Principal, filter alerts.Filter) ([]types.AlertDetails, error)
}

type reporter struct {
	values values.ValueService
	alerts alerts.AlertService
}

func New(v values.ValueService, a alerts.AlertService) Reporter {
	return &reporter{
		values: v,
		alerts: a,
	}
}

func (r *reporter) Values(ctx context.Context, principal types.Principal, offset, limit int) ([]types.Value, error) {
	switch principal.Role {
	case types.RoleAdmin:
		return r.values.ListAll(ctx, offset, limit)
	case types.RoleOperator:
		return r.values.ListByPrincipal(ctx, principal, offset, limit)
	}
	return nil, fmt.Errorf("%w: unknown role %q", types.ErrValidation, principal.Role)
}

func (r *reporter) Alerts(ctx context.Context, principal types.Principal, filter alerts.Filter) ([]types.AlertDetails, error) {
	switch principal.Role {
	case types.RoleAdmin:
		return r.alerts.ListAll(ctx, filter)
	case types.RoleOperator:
		return r.alerts.ListByPrincipal(ctx, principal, filter)
	}
	return nil, fmt.Errorf("%w: unknown role %q", types.ErrValidation, principal.Role)
}
