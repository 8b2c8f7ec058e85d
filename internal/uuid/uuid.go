// Package uuid generates client-side identifiers for pending mutations.
//
// A local id is generated once when a mutation is enqueued and is never
// reused. It doubles as the idempotency key sent to the remote backend.
package uuid

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// LocalPrefix marks identifiers minted on the device. Remote ids never carry it.
const LocalPrefix = "local_"

// NewLocalID returns a fresh local id, e.g. "local_1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed".
func NewLocalID() string {
	return LocalPrefix + uuid.New().String()
}

// IsLocal reports whether id was minted by NewLocalID.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

// ValidateLocalID returns an error if id is not a well-formed local id.
func ValidateLocalID(id string) error {
	if !IsLocal(id) {
		return fmt.Errorf("local id %q: missing %q prefix", id, LocalPrefix)
	}
	parsed, err := uuid.Parse(strings.TrimPrefix(id, LocalPrefix))
	if err != nil {
		return fmt.Errorf("local id %q: %w", id, err)
	}
	if parsed.Version() != 4 {
		return fmt.Errorf("local id %q: expected UUID v4, got v%d", id, parsed.Version())
	}
	return nil
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey returns a copy of ctx that carries key. The remote client
// sends it with every write so a replayed mutation can be deduplicated.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKey returns the key attached by WithIdempotencyKey.
func IdempotencyKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKeyCtx{}).(string)
	return key, ok && key != ""
}
