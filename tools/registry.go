package tools

import (
	"errors"
	"fmt"
	"sort"
)

var ErrToolNotFound = errors.New("not found")

// Registry maps tool names to implementations
type Registry map[string]Tool

// NewRegistry creates a registry with one resolve tool per input kind, all backed by resolver.
func NewRegistry(resolver Resolver) (*Registry, error) {
	if resolver == nil {
		return nil, fmt.Errorf("registry needs a resolver")
	}
	tools := map[string]Tool{}
	for _, t := range []Tool{
		NewResolveConcepts(resolver),
		NewResolveIngredients(resolver),
		NewResolveBarcode(resolver),
		NewResolveImage(resolver),
	} {
		tools[t.Name()] = t
	}

	registry := Registry(tools)
	return &registry, nil
}

// GetTools returns all tools in the registry sorted by name
func (r *Registry) GetTools() []Tool {
	tools := make([]Tool, 0, len(*r))
	for _, tool := range *r {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// GetTool retrieves a tool by name from the registry
func (r Registry) GetTool(name string) (Tool, error) {
	tool, exists := r[name]
	if !exists {
		return nil, fmt.Errorf("tool %q %w in registry", name, ErrToolNotFound)
	}
	return tool, nil
}
