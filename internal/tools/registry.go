// Package tools contains the built-in tool handlers the model may call while
// answering, plus the registry the dispatcher resolves them through.
package tools

import (
	"fmt"
	"sync"

	"skald/internal/agent/ports"
)

// Registry implements ports.ToolRegistry over a flat name map.
type Registry struct {
	handlers map[string]ports.ToolHandler
	mu       sync.RWMutex
}

// NewRegistry returns a registry preloaded with every built-in handler.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]ports.ToolHandler)}
	r.registerBuiltins()
	return r
}

func (r *Registry) Register(handler ports.ToolHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := handler.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool already exists: %s", name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *Registry) Get(name string) (ports.ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}

// Definitions returns schemas for the named tools, preserving the requested
// order. Unknown names are skipped.
func (r *Registry) Definitions(names []string) []ports.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.ToolDefinition, 0, len(names))
	for _, name := range names {
		if handler, ok := r.handlers[name]; ok {
			defs = append(defs, handler.Definition())
		}
	}
	return defs
}

func (r *Registry) registerBuiltins() {
	// File access
	r.handlers["list_all_files"] = NewListAllFiles()
	r.handlers["list_collection_files"] = NewListCollectionFiles()
	r.handlers["read_file"] = NewReadFile()

	// Search
	r.handlers["search_knowledge"] = NewSearchKnowledge()
	r.handlers["search_documents"] = NewSearchDocuments()

	// Task management
	r.handlers["update_plan"] = NewUpdatePlan()
	r.handlers["update_citations"] = NewUpdateCitations()
	r.handlers["task_status"] = NewTaskStatus()
}
