package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"raih/internal/model"
	"raih/internal/repository"
)

type MockGenerationRepository struct {
	mock.Mock
}

func (m *MockGenerationRepository) Create(ctx context.Context, gen *model.Generation) (*model.Generation, error) {
	args := m.Called(ctx, gen)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Generation), args.Error(1)
}

func (m *MockGenerationRepository) FindByID(ctx context.Context, id string) (*model.Generation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Generation), args.Error(1)
}

func (m *MockGenerationRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Generation], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Generation]), args.Error(1)
}

func (m *MockGenerationRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
