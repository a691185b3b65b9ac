// Package institutiontest provides an in-memory institution repository.
package institutiontest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/diagnosisview/dvserver/internal/domain/institution"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

type Repo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*institution.Institution
}

func NewRepo(seed ...*institution.Institution) *Repo {
	r := &Repo{items: make(map[uuid.UUID]*institution.Institution)}
	for _, inst := range seed {
		_ = r.Create(context.Background(), inst)
	}
	return r
}

func (r *Repo) Create(_ context.Context, inst *institution.Institution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Code == inst.Code {
			return fmt.Errorf("%w: institution %q already exists", apperrors.ErrConflict, inst.Code)
		}
	}
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	cp := *inst
	r.items[inst.ID] = &cp
	return nil
}

func (r *Repo) GetByID(_ context.Context, id uuid.UUID) (*institution.Institution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("institution: %w", apperrors.ErrNotFound)
	}
	cp := *inst
	return &cp, nil
}

func (r *Repo) GetByCode(_ context.Context, code string) (*institution.Institution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.items {
		if inst.Code == code {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("institution: %w", apperrors.ErrNotFound)
}

func (r *Repo) Update(_ context.Context, inst *institution.Institution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[inst.ID]; !ok {
		return fmt.Errorf("institution %s: %w", inst.ID, apperrors.ErrNotFound)
	}
	cp := *inst
	r.items[inst.ID] = &cp
	return nil
}

func (r *Repo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("institution %s: %w", id, apperrors.ErrNotFound)
	}
	delete(r.items, id)
	return nil
}

func (r *Repo) List(_ context.Context, limit, offset int) ([]*institution.Institution, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*institution.Institution
	for _, inst := range r.items {
		cp := *inst
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
