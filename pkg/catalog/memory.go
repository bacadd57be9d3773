package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Catalog. It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	id          string
	objects     map[string]Object
	definitions map[string]string
	columns     map[string][]Column
	failing     map[string]error
	down        error
}

// NewMemory creates an empty in-memory catalog.
func NewMemory(id string) *Memory {
	return &Memory{
		id:          id,
		objects:     make(map[string]Object),
		definitions: make(map[string]string),
		columns:     make(map[string][]Column),
		failing:     make(map[string]error),
	}
}

// AddTable registers a table.
func (m *Memory) AddTable(name, comment string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = Object{Name: name, Kind: KindTable, Comment: comment}
	return m
}

// AddView registers a view with its definition text.
func (m *Memory) AddView(name, definition string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = Object{Name: name, Kind: KindView}
	m.definitions[name] = definition
	return m
}

// SetColumns replaces the column layout of name. The object must be added
// separately.
func (m *Memory) SetColumns(name string, columns ...Column) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns[name] = append([]Column(nil), columns...)
	return m
}

// Remove drops an object from the catalog.
func (m *Memory) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	delete(m.definitions, name)
	delete(m.columns, name)
	delete(m.failing, name)
}

// FailDefinition makes DefinitionText fail for name with err.
func (m *Memory) FailDefinition(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[name] = err
}

// SetDown makes every lookup fail with ErrCatalogUnreachable wrapping err.
// Passing nil brings the catalog back.
func (m *Memory) SetDown(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = err
}

// ID implements Catalog.
func (m *Memory) ID() string {
	return m.id
}

// ObjectExists implements Catalog.
func (m *Memory) ObjectExists(ctx context.Context, name string) (bool, error) {
	kind, err := m.ObjectKind(ctx, name)
	if err != nil {
		return false, err
	}
	return kind != KindNone, nil
}

// ObjectKind implements Catalog.
func (m *Memory) ObjectKind(ctx context.Context, name string) (Kind, error) {
	if err := ctx.Err(); err != nil {
		return KindNone, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down != nil {
		return KindNone, Unreachable("object kind", m.down)
	}
	obj, ok := m.objects[name]
	if !ok {
		return KindNone, nil
	}
	return obj.Kind, nil
}

// DefinitionText implements Catalog.
func (m *Memory) DefinitionText(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down != nil {
		return "", Unreachable("definition", m.down)
	}
	if err, ok := m.failing[name]; ok {
		return "", fmt.Errorf("%w: %s: %w", ErrDefinitionUnavailable, name, err)
	}
	obj, ok := m.objects[name]
	if !ok {
		return "", &NotFoundError{Name: name}
	}
	if obj.Kind != KindView {
		return "", fmt.Errorf("%w: %s is not a view", ErrDefinitionUnavailable, name)
	}
	return m.definitions[name], nil
}

// ListObjects implements Catalog. Objects are returned sorted by name.
func (m *Memory) ListObjects(ctx context.Context) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down != nil {
		return nil, Unreachable("list objects", m.down)
	}
	objects := make([]Object, 0, len(m.objects))
	for _, obj := range m.objects {
		objects = append(objects, obj)
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Name < objects[j].Name
	})
	return objects, nil
}

// Columns implements Catalog.
func (m *Memory) Columns(ctx context.Context, name string) ([]Column, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down != nil {
		return nil, Unreachable("columns", m.down)
	}
	if _, ok := m.objects[name]; !ok {
		return nil, &NotFoundError{Name: name}
	}
	return append([]Column{}, m.columns[name]...), nil
}
