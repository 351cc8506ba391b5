// Package store defines the aggregate persistence interface. Each
// subsystem (workflow runtime, event buffer, NDA, investment, production)
// defines its own store interface and the composite Store composes them.
// Backends: PostgreSQL and Memory.
package store

import (
	"context"

	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/production"
	"github.com/CavellTopDev/pitchey-app-sub015/risk"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Store is the aggregate persistence interface.
// A single backend implements all of the subsystem stores.
type Store interface {
	workflow.Store
	event.Store
	nda.Store
	nda.Directory
	investment.Store
	production.Store

	// SaveProfile upserts a requester profile read by risk assessment.
	SaveProfile(ctx context.Context, p *risk.Profile) error

	// SaveTemplate upserts an agreement template.
	SaveTemplate(ctx context.Context, t *risk.Template) error

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
