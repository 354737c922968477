// Package tool provides the callable-tool registry offered to the completion
// provider: schema declarations for the request, and dispatch of a named
// invocation to its handler.
//
// Handlers must be read-only against their backing data source and safe for
// concurrent use; the registry itself is concurrency-safe.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// ErrUnknownTool is returned by Execute when no handler is registered under
// the requested name.
var ErrUnknownTool = errors.New("tool: unknown tool")

// ErrBadArguments is returned by Execute when the raw argument string does not
// parse as a JSON object.
var ErrBadArguments = errors.New("tool: arguments are not a JSON object")

// Handler executes one tool invocation. args is the raw JSON argument string
// accumulated from the model's stream; the handler decodes it itself. The
// returned string is a speakable, human-readable rendering of the result.
type Handler func(ctx context.Context, args string) (string, error)

// Tool pairs a schema declaration with its handler.
type Tool struct {
	// Definition is the schema offered to the completion provider.
	Definition llm.ToolDefinition

	// Handler executes the invocation.
	Handler Handler
}

// Registry holds the tools available to one agent. The zero value is NOT
// usable; create instances with [NewRegistry].
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry and registers the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t to the registry. A tool with the same name replaces the
// previous registration without changing its declaration position.
func (r *Registry) Register(t Tool) error {
	if t.Definition.Name == "" {
		return fmt.Errorf("tool: definition must have a non-empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool: %q must have a handler", t.Definition.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Definition.Name]; !exists {
		r.order = append(r.order, t.Definition.Name)
	}
	r.tools[t.Definition.Name] = t
	return nil
}

// Definitions returns the tool schemas in registration order, for inclusion in
// a completion request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Execute parses rawArgs and dispatches the named tool.
//
// It fails with an error wrapping [ErrBadArguments] when rawArgs is not a JSON
// object, and with an error wrapping [ErrUnknownTool] when name has no
// registered handler. Handler errors (including lookup misses) propagate
// unchanged.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string) (string, error) {
	var probe map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &probe); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrBadArguments, name, err)
	}

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	return t.Handler(ctx, rawArgs)
}
