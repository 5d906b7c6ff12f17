// Package actuator is the boundary to the service that keys vouchers
// into the ERP. Submissions are at least once; the remote side detects
// duplicates.
package actuator

import (
	"context"
	"strings"
	"sync"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/entity"
)

type Actuator interface {
	Submit(ctx context.Context, plan entity.VoucherEntryPlan) (entity.ActuatorResult, error)
}

// IsNumericIdentifier reports whether id is a non-empty run of ASCII
// digits, the shape of a saved voucher id.
func IsNumericIdentifier(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// Classify maps an actuator result onto a document outcome.
func Classify(res entity.ActuatorResult) constants.Outcome {
	switch {
	case res.Duplicate, strings.EqualFold(strings.TrimSpace(res.Identifier), constants.IdentifierDuplicate):
		return constants.OutcomeDuplicate
	case IsNumericIdentifier(res.Identifier):
		return constants.OutcomeSuccess
	default:
		return constants.OutcomeFailure
	}
}

// DryRun records plans instead of submitting them.
type DryRun struct {
	mu    sync.Mutex
	plans []entity.VoucherEntryPlan
}

func NewDryRun() *DryRun { return &DryRun{} }

func (d *DryRun) Submit(_ context.Context, plan entity.VoucherEntryPlan) (entity.ActuatorResult, error) {
	d.mu.Lock()
	d.plans = append(d.plans, plan)
	d.mu.Unlock()
	return entity.ActuatorResult{Identifier: constants.IdentifierDryRun}, nil
}

// Plans returns a copy of every recorded plan.
func (d *DryRun) Plans() []entity.VoucherEntryPlan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]entity.VoucherEntryPlan(nil), d.plans...)
}
