package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"OpportunityScout/internal/domain"
)

// Scanner searches one source platform for products matching a keyword.
type Scanner interface {
	Scan(ctx context.Context, platform, keyword string, maxResults int) ([]domain.Product, error)
}

// Func adapts a plain function to the Scanner capability.
type Func func(ctx context.Context, platform, keyword string, maxResults int) ([]domain.Product, error)

// Scan calls f.
func (f Func) Scan(ctx context.Context, platform, keyword string, maxResults int) ([]domain.Product, error) {
	return f(ctx, platform, keyword, maxResults)
}

// PlatformScanner is a Scanner bound to a single named platform.
type PlatformScanner interface {
	Scanner
	Platform() string
}

// Registry dispatches scans to the scanner registered for each platform.
type Registry struct {
	mu       sync.RWMutex
	scanners map[string]Scanner
}

var _ Scanner = (*Registry)(nil)

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces the scanner for its platform.
func (r *Registry) Register(s PlatformScanner) {
	r.RegisterFor(s.Platform(), s)
}

// RegisterFor binds an arbitrary scanner to a platform name.
func (r *Registry) RegisterFor(platform string, s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[normalize(platform)] = s
}

// Resolve returns the scanner for a platform or an error if it is absent.
func (r *Registry) Resolve(platform string) (Scanner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.scanners[normalize(platform)]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("scanner for platform %s is not registered", platform)
}

// Platforms lists registered platform names.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	return names
}

// Scan resolves the platform scanner and stamps the platform on every result
// that lacks one.
func (r *Registry) Scan(ctx context.Context, platform, keyword string, maxResults int) ([]domain.Product, error) {
	s, err := r.Resolve(platform)
	if err != nil {
		return nil, err
	}
	products, err := s.Scan(ctx, platform, keyword, maxResults)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].Platform == "" {
			products[i].Platform = platform
		}
	}
	return products, nil
}

func normalize(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
