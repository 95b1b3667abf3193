package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/cache"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/metrics"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

type BlockBackend interface {
	ListBlocks(ctx context.Context, userID string, from, to time.Time) ([]model.Block, error)
	CreateBlock(ctx context.Context, userID string, b model.Block) (model.Block, error)
	DeleteBlock(ctx context.Context, userID, blockID string) error
}

// BlockService reads and edits a user's stored availability blocks.
type BlockService struct {
	backend BlockBackend
	cache   cache.Store
	logger  *slog.Logger
}

func NewBlockService(backend BlockBackend, c cache.Store, logger *slog.Logger) *BlockService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockService{backend: backend, cache: c, logger: logger}
}

// List returns the blocks for w. A failed feed degrades to no blocks and degraded=true; only
// missing authentication is returned as an error.
func (s *BlockService) List(ctx context.Context, userID string, w Window) (blocks []model.Block, degraded bool, err error) {
	key := cache.Key(userID, cache.KindBlocks, w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	if cached, ok, err := cache.GetJSON[[]model.Block](ctx, s.cache, key); err == nil && ok {
		return cached, false, nil
	}

	blocks, err = s.backend.ListBlocks(ctx, userID, w.Start, w.End)
	if err != nil {
		if model.KindOf(err) == model.KindNotAuthenticated {
			return nil, false, err
		}
		metrics.LayerDegraded.WithLabelValues(string(LayerAvailability)).Inc()
		s.logger.Warn("availability feed failed; rendering without blocks", "user_id", userID, "err", err)
		return nil, true, nil
	}
	if err := cache.SetJSON(ctx, s.cache, key, blocks); err != nil {
		s.logger.Warn("availability cache write failed", "user_id", userID, "err", err)
	}
	return blocks, false, nil
}

// Create validates b before any network call. Full-day blocks are widened to whole days in
// loc, the owner's timezone.
func (s *BlockService) Create(ctx context.Context, userID string, b model.Block, loc *time.Location) (model.Block, error) {
	if loc == nil {
		loc = time.UTC
	}
	if b.IsFullDay && !b.StartAt.IsZero() {
		if b.EndAt.IsZero() {
			b.EndAt = b.StartAt
		}
		b = b.SpanFullDays(loc)
	}
	if err := b.Validate(); err != nil {
		return model.Block{}, err
	}
	created, err := s.backend.CreateBlock(ctx, userID, b)
	if err != nil {
		return model.Block{}, err
	}
	s.invalidate(ctx, userID)
	return created, nil
}

func (s *BlockService) Delete(ctx context.Context, userID, blockID string) error {
	if blockID == "" {
		return model.Invalid("delete availability", "block id is required")
	}
	if err := s.backend.DeleteBlock(ctx, userID, blockID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *BlockService) invalidate(ctx context.Context, userID string) {
	if err := cache.InvalidateKinds(ctx, s.cache, userID, cache.KindBlocks, cache.KindEvents); err != nil {
		s.logger.Warn("availability cache invalidation failed", "user_id", userID, "err", err)
	}
}
