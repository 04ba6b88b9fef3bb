package billbook

import "github.com/xraph/billbook/id"

// ID is the primary identifier type for all billbook entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
