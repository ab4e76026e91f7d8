package ecommerce

import (
	"fmt"

	"github.com/syncbridge/backend/internal/domain/platform"
)

// StaticRegistry is a fixed set of connectors assembled at startup.
type StaticRegistry struct {
	connectors map[platform.Code]platform.Connector
}

// NewStaticRegistry builds a registry from the given connectors.
func NewStaticRegistry(connectors ...platform.Connector) *StaticRegistry {
	m := make(map[platform.Code]platform.Connector, len(connectors))
	for _, c := range connectors {
		m[c.Code()] = c
	}
	return &StaticRegistry{connectors: m}
}

// Get returns the connector for the specified code.
func (r *StaticRegistry) Get(code platform.Code) (platform.Connector, error) {
	c, ok := r.connectors[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrPlatformNotConfigured, code)
	}
	return c, nil
}

// List returns all registered connectors.
func (r *StaticRegistry) List() []platform.Connector {
	out := make([]platform.Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c)
	}
	return out
}
