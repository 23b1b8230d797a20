package inbound

import (
	"context"
	"strings"
	"sync"
	"time"
)

const DefaultDedupeWindow = 10 * time.Minute

// DeliveryGuard claims a delivery before it is processed. Claim reports
// false while an unexpired claim for the same (source, deliveryID) exists.
type DeliveryGuard interface {
	Claim(ctx context.Context, source string, deliveryID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, source string, deliveryID string) error
}

// InMemoryDeliveryGuard keeps claims in process memory. Claims do not
// survive restarts and are not shared between replicas.
type InMemoryDeliveryGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
	Now     func() time.Time
}

func NewInMemoryDeliveryGuard() *InMemoryDeliveryGuard {
	return &InMemoryDeliveryGuard{
		entries: map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (g *InMemoryDeliveryGuard) Claim(_ context.Context, source string, deliveryID string, ttl time.Duration) (bool, error) {
	if g == nil {
		return false, inboundInternal("inbound: delivery guard is nil", nil)
	}
	key, err := deliveryKey(source, deliveryID)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = DefaultDedupeWindow
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entries == nil {
		g.entries = map[string]time.Time{}
	}
	g.evictExpiredLocked(now)
	if expiresAt, exists := g.entries[key]; exists && now.Before(expiresAt) {
		return false, nil
	}
	g.entries[key] = now.Add(ttl)
	return true, nil
}

func (g *InMemoryDeliveryGuard) Release(_ context.Context, source string, deliveryID string) error {
	if g == nil {
		return inboundInternal("inbound: delivery guard is nil", nil)
	}
	key, err := deliveryKey(source, deliveryID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}

// Len reports the number of unexpired claims.
func (g *InMemoryDeliveryGuard) Len() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictExpiredLocked(g.now())
	return len(g.entries)
}

func (g *InMemoryDeliveryGuard) now() time.Time {
	if g != nil && g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *InMemoryDeliveryGuard) evictExpiredLocked(now time.Time) {
	for key, expiresAt := range g.entries {
		if !now.Before(expiresAt) {
			delete(g.entries, key)
		}
	}
}

func deliveryKey(source string, deliveryID string) (string, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" || deliveryID == "" {
		return "", inboundBadInput("inbound: source and delivery id are required", map[string]any{
			"source":      source,
			"delivery_id": deliveryID,
		})
	}
	return source + ":" + deliveryID, nil
}
