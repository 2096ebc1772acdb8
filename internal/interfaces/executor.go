package interfaces

import (
	"context"

	"alpha-engine/internal/types"
)

// Executor is the execution collaborator boundary. It receives authorization
// tokens and is responsible for order submission and for reporting fills
// back into the shared state store.
type Executor interface {
	Submit(ctx context.Context, auth types.Authorization) error
}
