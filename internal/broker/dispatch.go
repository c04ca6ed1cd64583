package broker

import (
	"context"
	"fmt"

	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/store"
)

// Dispatch submits a task's command through the broker according to its
// operator, replacing the dynamic-attribute-lookup dispatch the original
// Python source used with an explicit switch over the model.Operator
// variants, so no dynamic attribute lookup is involved.
func Dispatch(ctx context.Context, b Broker, operator model.Operator, command, database string) (Handle, error) {
	switch operator {
	case model.OperatorBash:
		QuoteBash(command)
		return b.SubmitCommand(ctx, command)
	case model.OperatorSQL:
		return b.SubmitSQL(ctx, command, database)
	case model.OperatorPython:
		// Reserved, never implemented upstream (spec.md §9 Open Questions).
		return "", fmt.Errorf("operator %q: %w", operator, store.ErrUnsupportedOperator)
	default:
		return "", fmt.Errorf("operator %q: %w", operator, store.ErrUnsupportedOperator)
	}
}
