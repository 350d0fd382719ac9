package core

import (
	"context"
	"sync"
)

// TenantLocker serializes ingestion runs of one tenant. Lock fails fast with
// ErrTenantBusy instead of queueing behind a running import.
type TenantLocker interface {
	Lock(ctx context.Context, tenantID int64) (unlock func(context.Context) error, err error)
}

// LocalLocker is the in-process TenantLocker used when no Redis is configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[int64]struct{})}
}

func (l *LocalLocker) Lock(_ context.Context, tenantID int64) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[tenantID]; busy {
		return nil, ErrTenantBusy
	}
	l.held[tenantID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, tenantID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
