package simplecms

import "sync"

// Accessor describes how a content variant is wrapped when rendered.
type Accessor interface {
	Kind() ContentKind
	ContentWrapperType() string
}

// AccessorFactory builds an accessor for a content.
type AccessorFactory func(content *Content) Accessor

// ProjectionResolver maps a content kind to its accessor. Kinds without a
// registration resolve to no accessor.
type ProjectionResolver struct {
	mu        sync.RWMutex
	factories map[ContentKind]AccessorFactory
}

// NewProjectionResolver returns an empty resolver.
func NewProjectionResolver() *ProjectionResolver {
	return &ProjectionResolver{factories: make(map[ContentKind]AccessorFactory)}
}

// NewDefaultProjectionResolver returns a resolver with the page module
// accessors registered.
func NewDefaultProjectionResolver() *ProjectionResolver {
	r := NewProjectionResolver()
	r.Register(ContentKindHTML, StaticAccessor(ContentKindHTML, "html-content"))
	r.Register(ContentKindHTMLWidget, StaticAccessor(ContentKindHTMLWidget, "html-widget"))
	r.Register(ContentKindServerWidget, StaticAccessor(ContentKindServerWidget, "server-widget"))
	return r
}

// RegisterBlogAccessors adds the blog post accessor to r.
func RegisterBlogAccessors(r *ProjectionResolver) {
	r.Register(ContentKindBlogPost, StaticAccessor(ContentKindBlogPost, "blog-post-content"))
}

// Register binds kind to factory, replacing any previous registration.
func (r *ProjectionResolver) Register(kind ContentKind, factory AccessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Resolve returns the accessor for content, or false when none is registered.
func (r *ProjectionResolver) Resolve(content *Content) (Accessor, bool) {
	if content == nil {
		return nil, false
	}
	r.mu.RLock()
	factory, ok := r.factories[content.Kind]
	r.mu.RUnlock()
	if !ok || factory == nil {
		return nil, false
	}
	accessor := factory(content)
	if accessor == nil {
		return nil, false
	}
	return accessor, true
}

// Kinds returns the registered kinds.
func (r *ProjectionResolver) Kinds() []ContentKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]ContentKind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}

type staticAccessor struct {
	kind        ContentKind
	wrapperType string
}

func (a staticAccessor) Kind() ContentKind          { return a.kind }
func (a staticAccessor) ContentWrapperType() string { return a.wrapperType }

// StaticAccessor returns a factory producing an accessor with a fixed wrapper type.
func StaticAccessor(kind ContentKind, wrapperType string) AccessorFactory {
	accessor := staticAccessor{kind: kind, wrapperType: wrapperType}
	return func(*Content) Accessor { return accessor }
}
