package simplecms

import (
	"context"
	"fmt"
)

// ContentRegionResolver is the default ChildRegionResolver. It describes the
// regions a content declares through its ContentRegions bindings.
type ContentRegionResolver struct {
	store Store
}

// NewContentRegionResolver creates a resolver. When the content passed to it
// has no materialised region bindings, they are loaded from store.
func NewContentRegionResolver(store Store) *ContentRegionResolver {
	return &ContentRegionResolver{store: store}
}

func (r *ContentRegionResolver) GetChildRegionViewModels(ctx context.Context, content *Content) ([]ChildRegionViewModel, error) {
	regions := content.ContentRegions
	if regions == nil {
		if r.store == nil {
			return nil, &InvalidContentStateError{ContentID: content.ID, Reason: "content regions not loaded"}
		}
		loaded, err := r.store.GetContent(ctx, content.ID, FetchRegions())
		if err != nil {
			return nil, fmt.Errorf("failed to load content regions: %w", err)
		}
		regions = loaded.ContentRegions
	}

	models := make([]ChildRegionViewModel, 0, len(regions))
	for _, cr := range regions {
		model := ChildRegionViewModel{RegionID: cr.RegionID}
		if cr.Region != nil {
			model.RegionIdentifier = cr.Region.RegionIdentifier
		}
		models = append(models, model)
	}
	return models, nil
}
