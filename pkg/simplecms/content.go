package simplecms

import (
	"time"

	"github.com/google/uuid"
)

// Clone returns a copy of the content with a fresh identity. Options, region
// bindings and child bindings are deep copied and rebound to the clone.
func (c *Content) Clone() *Content {
	return c.CopyDataTo(&Content{ID: uuid.New()}, true)
}

// CopyDataTo copies the content data into target and returns target.
//
// Scalar fields are always copied; OriginalID keeps pointing at the same
// original version. When copyCollections is true, options not yet present on
// target (by key), region bindings and child bindings are cloned and rebound
// to target. Collections of target are only initialised when nil. The
// receiver is never modified.
func (c *Content) CopyDataTo(target *Content, copyCollections bool) *Content {
	target.Kind = c.Kind
	target.Name = c.Name
	target.PreviewURL = c.PreviewURL
	target.PublishedOn = copyTime(c.PublishedOn)
	target.PublishedByUser = c.PublishedByUser
	target.Status = c.Status
	target.OriginalID = copyID(c.OriginalID)

	if !copyCollections {
		return target
	}

	if c.ContentOptions != nil {
		if target.ContentOptions == nil {
			target.ContentOptions = []*ContentOption{}
		}
		for _, option := range c.ContentOptions {
			if hasOption(target.ContentOptions, option.Key) {
				continue
			}
			cloned := option.Clone()
			cloned.ContentID = target.ID
			target.ContentOptions = append(target.ContentOptions, cloned)
		}
	}

	if c.ContentRegions != nil {
		if target.ContentRegions == nil {
			target.ContentRegions = []*ContentRegion{}
		}
		for _, contentRegion := range c.ContentRegions {
			target.ContentRegions = append(target.ContentRegions, &ContentRegion{
				ID:        uuid.New(),
				ContentID: target.ID,
				RegionID:  contentRegion.RegionID,
				Region:    contentRegion.Region,
			})
		}
	}

	if c.ChildContents != nil {
		if target.ChildContents == nil {
			target.ChildContents = []*ChildContent{}
		}
		for _, child := range c.ChildContents {
			newChild := &ChildContent{
				ID:                   uuid.New(),
				ParentID:             target.ID,
				ChildID:              child.ChildID,
				AssignmentIdentifier: child.AssignmentIdentifier,
			}
			if child.Options != nil {
				newChild.Options = make([]*ChildContentOption, 0, len(child.Options))
				for _, option := range child.Options {
					cloned := option.Clone()
					cloned.ChildContentID = newChild.ID
					newChild.Options = append(newChild.Options, cloned)
				}
			}
			target.ChildContents = append(target.ChildContents, newChild)
		}
	}

	return target
}

// CreateHistoryItem stores the current state of c as an archived version in
// c.History and returns it. The history item points at c through OriginalID.
func (c *Content) CreateHistoryItem(now time.Time) *Content {
	item := c.Clone()
	originalID := c.ID
	item.OriginalID = &originalID
	item.Status = ContentStatusArchived
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now
	c.History = append(c.History, item)
	return item
}

// IsOriginal reports whether c is the first version of its chain.
func (c *Content) IsOriginal() bool {
	return c.OriginalID == nil
}

// Clone returns a detached copy of the option with a fresh identity. The
// caller must set ContentID.
func (o *ContentOption) Clone() *ContentOption {
	return &ContentOption{
		ID:           uuid.New(),
		Key:          o.Key,
		Type:         o.Type,
		DefaultValue: o.DefaultValue,
		IsDeletable:  o.IsDeletable,
	}
}

// Clone returns a detached copy of the option with a fresh identity. The
// caller must set ChildContentID.
func (o *ChildContentOption) Clone() *ChildContentOption {
	return &ChildContentOption{
		ID:          uuid.New(),
		Key:         o.Key,
		Type:        o.Type,
		Value:       o.Value,
		IsDeletable: o.IsDeletable,
	}
}

func hasOption(options []*ContentOption, key string) bool {
	for _, o := range options {
		if o.Key == key {
			return true
		}
	}
	return false
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
