package floe

import (
	"context"
	"fmt"
	"sync"
)

// BlockKind distinguishes declared variables from dynamic bindings created at
// runtime.
type BlockKind string

const (
	BlockKindDeclared BlockKind = "declared"
	BlockKindDynamic  BlockKind = "dynamic"
)

// MemoryBlock holds the current value of one variable binding plus the
// metadata needed to resolve and persist it.
type MemoryBlock struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Kind          BlockKind     `json:"kind"`
	Scope         VariableScope `json:"scope,omitempty"`
	StorageDriver string        `json:"storage_driver,omitempty"`
	Value         any           `json:"value"`
}

// Copy returns a shallow copy of the block.
func (b *MemoryBlock) Copy() *MemoryBlock {
	copied := *b
	return &copied
}

// VariableStorageDriver stores variable values outside the workflow state,
// keyed by (workflowInstanceID, blockID). The engine resolves drivers by name
// through a StorageDriverRegistry; it does not implement external stores.
type VariableStorageDriver interface {
	Read(ctx context.Context, workflowInstanceID, blockID string) (any, bool, error)
	Write(ctx context.Context, workflowInstanceID, blockID string, value any) error
	Delete(ctx context.Context, workflowInstanceID, blockID string) error
}

// StorageDriverRegistry resolves storage drivers by name.
type StorageDriverRegistry struct {
	mutex   sync.RWMutex
	drivers map[string]VariableStorageDriver
}

// NewStorageDriverRegistry returns a registry pre-populated with the in-memory
// driver under the name "memory".
func NewStorageDriverRegistry() *StorageDriverRegistry {
	registry := &StorageDriverRegistry{drivers: map[string]VariableStorageDriver{}}
	registry.Register("memory", NewMemoryDriver())
	return registry
}

// Register adds or replaces a driver under the given name.
func (r *StorageDriverRegistry) Register(name string, driver VariableStorageDriver) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.drivers[name] = driver
}

// Get returns the driver registered under the given name.
func (r *StorageDriverRegistry) Get(name string) (VariableStorageDriver, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	driver, ok := r.drivers[name]
	return driver, ok
}

// MemoryDriver is a process-local storage driver, used as the default and in
// tests.
type MemoryDriver struct {
	mutex  sync.RWMutex
	values map[string]any
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{values: map[string]any{}}
}

func (d *MemoryDriver) key(instanceID, blockID string) string {
	return instanceID + "\x00" + blockID
}

func (d *MemoryDriver) Read(ctx context.Context, instanceID, blockID string) (any, bool, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	value, ok := d.values[d.key(instanceID, blockID)]
	return value, ok, nil
}

func (d *MemoryDriver) Write(ctx context.Context, instanceID, blockID string, value any) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.values[d.key(instanceID, blockID)] = value
	return nil
}

func (d *MemoryDriver) Delete(ctx context.Context, instanceID, blockID string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.values, d.key(instanceID, blockID))
	return nil
}

// MemoryRegister is a scoped key-value store backing variables and
// parameters. Lookup walks from the register toward the root (lexical
// scoping). Each activity execution context owns a register whose parent is
// its parent activity's register; the workflow execution context owns the
// root.
type MemoryRegister struct {
	parent *MemoryRegister
	blocks map[string]*MemoryBlock
	names  map[string]string
	order  []string

	// root-only fields for storage-driven variables
	drivers    *StorageDriverRegistry
	instanceID string
	driverCtx  context.Context
}

// NewMemoryRegister creates a root register.
func NewMemoryRegister() *MemoryRegister {
	return &MemoryRegister{
		blocks: map[string]*MemoryBlock{},
		names:  map[string]string{},
	}
}

// CreateChild returns a new register whose lookups fall through to this one.
func (r *MemoryRegister) CreateChild() *MemoryRegister {
	child := NewMemoryRegister()
	child.parent = r
	return child
}

// Parent returns the parent register, or nil for the root.
func (r *MemoryRegister) Parent() *MemoryRegister {
	return r.parent
}

func (r *MemoryRegister) root() *MemoryRegister {
	current := r
	for current.parent != nil {
		current = current.parent
	}
	return current
}

// BindDrivers attaches the storage driver registry and instance identity to
// the root register. Driver-backed blocks cannot resolve without it.
func (r *MemoryRegister) BindDrivers(drivers *StorageDriverRegistry, instanceID string) {
	root := r.root()
	root.drivers = drivers
	root.instanceID = instanceID
}

// SetDriverContext installs the context used for storage driver calls during
// the current turn.
func (r *MemoryRegister) SetDriverContext(ctx context.Context) {
	r.root().driverCtx = ctx
}

func (r *MemoryRegister) driverContext() context.Context {
	root := r.root()
	if root.driverCtx != nil {
		return root.driverCtx
	}
	return context.Background()
}

// Declare adds a block to this register. Redeclaring an existing block ID
// replaces the binding.
func (r *MemoryRegister) Declare(block *MemoryBlock) {
	if _, exists := r.blocks[block.ID]; !exists {
		r.order = append(r.order, block.ID)
	}
	r.blocks[block.ID] = block
	if block.Name != "" {
		r.names[block.Name] = block.ID
	}
}

// DeclareVariable declares a block for the given variable definition,
// initialized to its default value.
func (r *MemoryRegister) DeclareVariable(v *Variable, nodeID string) *MemoryBlock {
	block := &MemoryBlock{
		ID:            v.BlockID(nodeID),
		Name:          v.Name,
		Kind:          BlockKindDeclared,
		Scope:         v.Scope,
		StorageDriver: v.StorageDriver,
		Value:         v.Default,
	}
	r.Declare(block)
	return block
}

// find returns the nearest register declaring blockID, walking toward the root.
func (r *MemoryRegister) find(blockID string) (*MemoryRegister, *MemoryBlock) {
	for current := r; current != nil; current = current.parent {
		if block, ok := current.blocks[blockID]; ok {
			return current, block
		}
	}
	return nil, nil
}

// findName returns the nearest register with a binding for name.
func (r *MemoryRegister) findName(name string) (*MemoryRegister, *MemoryBlock) {
	for current := r; current != nil; current = current.parent {
		if blockID, ok := current.names[name]; ok {
			return current, current.blocks[blockID]
		}
	}
	return nil, nil
}

// Get returns the value bound to blockID, walking toward the root.
func (r *MemoryRegister) Get(blockID string) (any, bool, error) {
	_, block := r.find(blockID)
	if block == nil {
		return nil, false, nil
	}
	return r.readBlock(block)
}

// GetNamed returns the value bound to the given variable name.
func (r *MemoryRegister) GetNamed(name string) (any, bool, error) {
	_, block := r.findName(name)
	if block == nil {
		return nil, false, nil
	}
	return r.readBlock(block)
}

func (r *MemoryRegister) readBlock(block *MemoryBlock) (any, bool, error) {
	if block.StorageDriver == "" {
		return block.Value, true, nil
	}
	root := r.root()
	if root.drivers == nil {
		return nil, false, fmt.Errorf("no storage drivers bound for variable %q", block.Name)
	}
	driver, ok := root.drivers.Get(block.StorageDriver)
	if !ok {
		return nil, false, fmt.Errorf("unknown storage driver %q for variable %q", block.StorageDriver, block.Name)
	}
	return driver.Read(r.driverContext(), root.instanceID, block.ID)
}

// Set binds a value to blockID in the nearest register that declares it. If
// no register declares the block, it is bound in this register as a dynamic
// block.
func (r *MemoryRegister) Set(blockID string, value any) error {
	_, block := r.find(blockID)
	if block == nil {
		block = &MemoryBlock{ID: blockID, Kind: BlockKindDynamic}
		r.Declare(block)
	}
	return r.writeBlock(block, value)
}

// SetNamed binds a value to the given variable name in the nearest register
// with a binding for it; otherwise a dynamic block is created here.
func (r *MemoryRegister) SetNamed(name string, value any) error {
	_, block := r.findName(name)
	if block == nil {
		block = &MemoryBlock{ID: "dyn/" + name, Name: name, Kind: BlockKindDynamic}
		r.Declare(block)
	}
	return r.writeBlock(block, value)
}

func (r *MemoryRegister) writeBlock(block *MemoryBlock, value any) error {
	if block.StorageDriver == "" {
		block.Value = value
		return nil
	}
	root := r.root()
	if root.drivers == nil {
		return fmt.Errorf("no storage drivers bound for variable %q", block.Name)
	}
	driver, ok := root.drivers.Get(block.StorageDriver)
	if !ok {
		return fmt.Errorf("unknown storage driver %q for variable %q", block.StorageDriver, block.Name)
	}
	return driver.Write(r.driverContext(), root.instanceID, block.ID, value)
}

// Blocks returns the register's local blocks in declaration order, excluding
// transient-scoped ones. Used by state extraction.
func (r *MemoryRegister) Blocks() []*MemoryBlock {
	blocks := make([]*MemoryBlock, 0, len(r.order))
	for _, id := range r.order {
		block := r.blocks[id]
		if block.Scope == VariableScopeTransient {
			continue
		}
		blocks = append(blocks, block.Copy())
	}
	return blocks
}

// Visible returns the variables visible from this register as a name-value
// map, walking toward the root. Nearer bindings win. Driver-backed variables
// are resolved through their drivers; resolution errors skip the binding.
func (r *MemoryRegister) Visible() map[string]any {
	visible := map[string]any{}
	for current := r; current != nil; current = current.parent {
		for name := range current.names {
			if _, seen := visible[name]; seen {
				continue
			}
			block := current.blocks[current.names[name]]
			value, ok, err := r.readBlock(block)
			if err != nil || !ok {
				continue
			}
			visible[name] = value
		}
	}
	return visible
}

// ListNames returns the variable names bound locally on this register.
func (r *MemoryRegister) ListNames() []string {
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	return names
}
