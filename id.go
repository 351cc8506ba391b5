package dealflow

import "github.com/CavellTopDev/pitchey-app-sub015/id"

// ID is the primary identifier type for all dealflow entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
