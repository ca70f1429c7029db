// Package exchange holds the contract venue adapters implement.
package exchange

import (
	"context"

	"okx-connector/internal/bus"
)

// Connector streams venue events into tx and executes commands read from rx.
// Start blocks until every client it runs has stopped.
type Connector interface {
	Name() string
	Start(ctx context.Context, tx bus.Sender, rx bus.Receiver) error
}

// PublicOnly is implemented by connectors that can run without credentials.
type PublicOnly interface {
	PublicOnly() bool
}
