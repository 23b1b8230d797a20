package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeliveryStore records claimed webhook deliveries so redelivered payloads
// are dropped until the claim expires.
type DeliveryStore struct {
	db  *bun.DB
	Now func() time.Time
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{
		db:  db,
		Now: time.Now,
	}, nil
}

// Claim reserves (source, deliveryID) for ttl. It reports false when an
// unexpired claim already exists. Expired claims are taken over in place.
func (s *DeliveryStore) Claim(ctx context.Context, source string, deliveryID string, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	source = strings.TrimSpace(source)
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" || deliveryID == "" {
		return false, fmt.Errorf("sqlstore: source and delivery id are required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("sqlstore: claim ttl must be positive")
	}

	now := s.now()
	record := &deliveryRecord{
		ID:         uuid.NewString(),
		Source:     source,
		DeliveryID: deliveryID,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return false, err
		}
		result, updateErr := s.db.NewUpdate().
			Model((*deliveryRecord)(nil)).
			Set("expires_at = ?", now.Add(ttl)).
			Where("source = ?", source).
			Where("delivery_id = ?", deliveryID).
			Where("expires_at <= ?", now).
			Exec(ctx)
		if updateErr != nil {
			return false, updateErr
		}
		affected, affectedErr := result.RowsAffected()
		if affectedErr != nil {
			return false, affectedErr
		}
		return affected > 0, nil
	}
	return true, nil
}

// Release drops the claim so the delivery can be retried.
func (s *DeliveryStore) Release(ctx context.Context, source string, deliveryID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("source = ?", strings.TrimSpace(source)).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Exec(ctx)
	return err
}

// PurgeExpired removes claims that expired before now.
func (s *DeliveryStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *DeliveryStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
