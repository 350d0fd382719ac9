package core

import (
	"context"
	"fmt"
	"slices"
)

// loadSnapshot reads the registry state the groups reconcile against.
func loadSnapshot(ctx context.Context, tx RegistryTx, tenantID int64, period Period, groups []ChildGroup) (Snapshot, error) {
	snap := Snapshot{Children: map[string]Child{}, Visits: map[int64][]Visit{}}
	if len(groups) == 0 {
		return snap, nil
	}

	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	children, err := tx.FindChildrenByKeys(ctx, tenantID, keys)
	if err != nil {
		return snap, fmt.Errorf("find children: %w", err)
	}
	if len(children) == 0 {
		return snap, nil
	}

	ids := make([]int64, len(children))
	for i, c := range children {
		snap.Children[c.DocumentKey] = c
		ids[i] = c.ID
	}

	visits, err := tx.FindVisits(ctx, tenantID, ids, period.Date())
	if err != nil {
		return snap, fmt.Errorf("find visits: %w", err)
	}
	for _, v := range visits {
		snap.Visits[v.ChildID] = append(snap.Visits[v.ChildID], v)
	}
	return snap, nil
}

// applyPlan writes plan in dependency order: child updates, child creates,
// visits of the new children, visit updates, visit creates.
func applyPlan(ctx context.Context, tx RegistryTx, plan *Plan) error {
	if len(plan.ChildUpdates) > 0 {
		if err := tx.UpdateChildren(ctx, plan.ChildUpdates); err != nil {
			return fmt.Errorf("update children: %w", err)
		}
	}

	creates := slices.Clone(plan.VisitCreates)
	if len(plan.ChildCreates) > 0 {
		ids, err := tx.CreateChildren(ctx, plan.ChildCreates)
		if err != nil {
			return fmt.Errorf("create children: %w", err)
		}
		if len(ids) != len(plan.ChildCreates) {
			return fmt.Errorf("create children: got %d ids for %d children", len(ids), len(plan.ChildCreates))
		}

		byKey := make(map[string]int64, len(ids))
		for i, c := range plan.ChildCreates {
			byKey[c.DocumentKey] = ids[i]
		}
		for _, p := range plan.PendingVisits {
			id, ok := byKey[p.DocumentKey]
			if !ok {
				return fmt.Errorf("create children: no id assigned to %s", p.DocumentKey)
			}
			for _, v := range p.Visits {
				v.ChildID = id
				creates = append(creates, v)
			}
		}
	}

	if len(plan.VisitUpdates) > 0 {
		if err := tx.UpdateVisits(ctx, plan.VisitUpdates); err != nil {
			return fmt.Errorf("update visits: %w", err)
		}
	}
	if len(creates) > 0 {
		if err := tx.CreateVisits(ctx, creates); err != nil {
			return fmt.Errorf("create visits: %w", err)
		}
	}
	return nil
}
