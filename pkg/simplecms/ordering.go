package simplecms

import (
	"context"

	"github.com/google/uuid"
)

// DefaultOrderBase is the order assigned to the first placement of a scope.
const DefaultOrderBase = 1

// OrderingService computes the order of a new placement among its siblings.
type OrderingService interface {
	// GetNextOrderNumber returns a value greater than every Order of the
	// placements on pageID that share parentPageContentID. store must be
	// the unit of work that will save the placement.
	GetNextOrderNumber(ctx context.Context, store Store, pageID uuid.UUID, parentPageContentID *uuid.UUID) (int, error)
}

type orderingService struct {
	base int
}

// NewOrderingService returns the default ordering service. Empty scopes start
// at base.
func NewOrderingService(base int) OrderingService {
	return &orderingService{base: base}
}

func (o *orderingService) GetNextOrderNumber(ctx context.Context, store Store, pageID uuid.UUID, parentPageContentID *uuid.UUID) (int, error) {
	filter := PageContentFilter{PageID: pageID}
	if parent := normalizeParent(parentPageContentID); parent != nil {
		filter.ParentID = parent
	} else {
		filter.TopLevelOnly = true
	}

	siblings, err := store.ListPageContents(ctx, filter)
	if err != nil {
		return 0, err
	}
	if len(siblings) == 0 {
		return o.base, nil
	}

	max := siblings[0].Order
	for _, sibling := range siblings[1:] {
		if sibling.Order > max {
			max = sibling.Order
		}
	}
	if max < o.base {
		return o.base, nil
	}
	return max + 1, nil
}
