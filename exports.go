package billbook

import "github.com/xraph/billbook/types"

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Money constructors.
var (
	INR  = types.INR
	USD  = types.USD
	Zero = types.Zero
	Sum  = types.Sum
)

// NewEntity is re-exported from types package.
var NewEntity = types.NewEntity
