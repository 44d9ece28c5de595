// Package usecase implements the business logic for the instrument registry.
package usecase

import (
	"context"
	"fmt"

	"ohlcv_ingest/internal/feature/instruments/domain/entity"
)

// InstrumentRepository abstracts the persistence layer for registered instruments.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type InstrumentRepository interface {
	ListActive(ctx context.Context) ([]entity.Instrument, error)
	ListActiveCodes(ctx context.Context) ([]string, error)
}

// InstrumentUsecase provides business logic for instrument operations.
type InstrumentUsecase struct {
	repo InstrumentRepository
}

// NewInstrumentUsecase creates a new InstrumentUsecase with the given repository.
func NewInstrumentUsecase(r InstrumentRepository) *InstrumentUsecase {
	return &InstrumentUsecase{repo: r}
}

// ListActiveInstruments returns all active instruments ordered by sort key.
func (u *InstrumentUsecase) ListActiveInstruments(ctx context.Context) ([]entity.Instrument, error) {
	return u.repo.ListActive(ctx)
}

// ResolveInstruments returns configured when it is non-empty, otherwise the
// active codes of the registry.
func (u *InstrumentUsecase) ResolveInstruments(ctx context.Context, configured []string) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	codes, err := u.repo.ListActiveCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active instruments: %w", err)
	}
	return codes, nil
}
