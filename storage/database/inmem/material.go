package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/material"
	"github.com/trezcool/darasa/core/query"
)

type materialRepository struct {
	db *DB
}

var _ material.Repository = (*materialRepository)(nil)

func NewMaterialRepository(db *DB) material.Repository {
	return &materialRepository{db: db}
}

func (repo *materialRepository) CreateMaterial(_ context.Context, m material.Material) (material.Material, error) {
	repo.db.material.Lock()
	defer repo.db.material.Unlock()

	m.ID = uuid.NewString()
	repo.db.material.put(m.ID, m)
	return m, nil
}

func (repo *materialRepository) QueryMaterials(_ context.Context, q query.Query) ([]material.Material, int, error) {
	repo.db.material.RLock()
	defer repo.db.material.RUnlock()

	mm, count := query.Apply(repo.db.material.list(), q)
	return mm, count, nil
}

func (repo *materialRepository) GetMaterial(_ context.Context, id string) (material.Material, error) {
	repo.db.material.RLock()
	defer repo.db.material.RUnlock()

	if m, ok := repo.db.material.get(id); ok {
		return m, nil
	}
	return material.Material{}, material.ErrNotFound
}

func (repo *materialRepository) DeleteMaterial(_ context.Context, id string) error {
	repo.db.material.Lock()
	defer repo.db.material.Unlock()

	if repo.db.material.remove(id) == 0 {
		return material.ErrNotFound
	}
	return nil
}
