package ports

import (
	"context"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// BinRepository persists collection points.
type BinRepository interface {
	List(ctx context.Context) ([]domain.TrashLocation, error)
	GetByID(ctx context.Context, id string) (*domain.TrashLocation, error)
	Create(ctx context.Context, loc *domain.TrashLocation) error
	UpdateStatus(ctx context.Context, id string, status domain.BinStatus) (*domain.TrashLocation, error)
	FindInBounds(ctx context.Context, b domain.Bounds) ([]domain.TrashLocation, error)
}
