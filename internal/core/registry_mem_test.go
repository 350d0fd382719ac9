package core

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// memRegistry is an in-memory Registry with transactional rollback.
type memRegistry struct {
	mu       sync.Mutex
	nextID   int64
	children map[int64]Child
	visits   map[int64]Visit
	batches  []UploadBatch

	failCreateVisits error
	txCount          int
}

func newMemRegistry() *memRegistry {
	return &memRegistry{children: map[int64]Child{}, visits: map[int64]Visit{}}
}

func (r *memRegistry) WithTx(ctx context.Context, fn func(tx RegistryTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++

	children, visits, nextID := maps.Clone(r.children), maps.Clone(r.visits), r.nextID
	if err := fn(memTx{r}); err != nil {
		r.children, r.visits, r.nextID = children, visits, nextID
		return err
	}
	return ctx.Err()
}

func (r *memRegistry) CreateBatch(_ context.Context, b *UploadBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, *b)
	return nil
}

func (r *memRegistry) FinishBatch(_ context.Context, b *UploadBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.batches {
		if r.batches[i].ID == b.ID {
			r.batches[i] = *b
			return nil
		}
	}
	return errors.New("batch not found")
}

func (r *memRegistry) ListBatches(_ context.Context, tenantID int64, limit int) ([]UploadBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []UploadBatch
	for i := len(r.batches) - 1; i >= 0 && len(out) < limit; i-- {
		if r.batches[i].TenantID == tenantID {
			out = append(out, r.batches[i])
		}
	}
	return out, nil
}

func (r *memRegistry) PeriodVisits(_ context.Context, tenantID int64, period Period, f ReportFilter) ([]VisitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []VisitRecord
	for _, v := range r.visits {
		c := r.children[v.ChildID]
		if v.TenantID != tenantID || !v.Date.Equal(period.Date()) {
			continue
		}
		if f.Facility != "" && c.Facility != f.Facility {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(c.Name, strings.ToUpper(f.Search)) && !strings.Contains(c.DocumentKey, f.Search) {
			continue
		}
		out = append(out, VisitRecord{Child: c, Visit: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Child.Name != out[j].Child.Name {
			return out[i].Child.Name < out[j].Child.Name
		}
		return out[i].Visit.ID < out[j].Visit.ID
	})
	return out, nil
}

func (r *memRegistry) counts() (children, visits int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.children), len(r.visits)
}

// memTx runs with memRegistry.mu held.
type memTx struct{ r *memRegistry }

func (t memTx) FindChildrenByKeys(_ context.Context, tenantID int64, keys []string) ([]Child, error) {
	var out []Child
	for _, c := range t.r.children {
		if c.TenantID == tenantID && slices.Contains(keys, c.DocumentKey) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t memTx) FindVisits(_ context.Context, tenantID int64, childIDs []int64, date time.Time) ([]Visit, error) {
	var out []Visit
	for _, v := range t.r.visits {
		if v.TenantID == tenantID && v.Date.Equal(date) && slices.Contains(childIDs, v.ChildID) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t memTx) UpdateChildren(_ context.Context, children []Child) error {
	for _, c := range children {
		if _, ok := t.r.children[c.ID]; !ok {
			return errors.New("child not found")
		}
		t.r.children[c.ID] = c
	}
	return nil
}

func (t memTx) CreateChildren(_ context.Context, children []Child) ([]int64, error) {
	ids := make([]int64, len(children))
	for i, c := range children {
		for _, existing := range t.r.children {
			if existing.TenantID == c.TenantID && existing.DocumentKey == c.DocumentKey {
				return nil, errors.New("duplicate key value violates unique constraint")
			}
		}
		t.r.nextID++
		c.ID = t.r.nextID
		t.r.children[c.ID] = c
		ids[i] = c.ID
	}
	return ids, nil
}

func (t memTx) UpdateVisits(_ context.Context, visits []Visit) error {
	for _, v := range visits {
		if _, ok := t.r.visits[v.ID]; !ok {
			return errors.New("visit not found")
		}
		t.r.visits[v.ID] = v
	}
	return nil
}

func (t memTx) CreateVisits(_ context.Context, visits []Visit) error {
	if t.r.failCreateVisits != nil {
		return t.r.failCreateVisits
	}
	for _, v := range visits {
		if _, ok := t.r.children[v.ChildID]; !ok {
			return errors.New("violates foreign key constraint")
		}
		t.r.nextID++
		v.ID = t.r.nextID
		t.r.visits[v.ID] = v
	}
	return nil
}
