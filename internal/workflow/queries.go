package workflow

import (
	"context"
	"fmt"

	"residency-training-server/internal/authz"
	"residency-training-server/internal/models"
)

// GetRecord loads a record after checking the actor's scope for the given
// action. Used by the read and attachment endpoints.
func (co *Coordinator) GetRecord(ctx context.Context, actorID, recordID string, action authz.Action) (*models.ProgressRecord, error) {
	actor, err := co.users.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	rec, err := co.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	owner, err := co.users.Resolve(ctx, rec.ResidentID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAct(actorContext(actor), ownerContext(owner), action) {
		return nil, fmt.Errorf("%w: role %s may not %s record %s", ErrForbidden, actor.Role, action, recordID)
	}
	return rec, nil
}
