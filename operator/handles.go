package operator

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Ref is the wire representation of an operator instance: the opaque
// reference a script receives when a host method returns an operator
// type, and passes back to address that instance later.
type Ref struct {
	Type   string `json:"$type"`
	Handle string `json:"$handle"`
}

// Live describes one live instance in the handle table.
type Live struct {
	Handle string
	Type   string
}

// HandleTable maps opaque handles to live operator instances. Read and
// written concurrently by the operator invoker.
type HandleTable struct {
	mu sync.RWMutex
	m  map[string]tableSlot
}

type tableSlot struct {
	instance any
	typeName string
}

// NewHandleTable creates an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{m: make(map[string]tableSlot)}
}

// Put stores an instance under an existing handle.
func (h *HandleTable) Put(handle string, instance any) {
	h.mu.Lock()
	h.m[handle] = tableSlot{instance: instance}
	h.mu.Unlock()
}

// Assign stores an instance under a fresh opaque handle and returns it.
func (h *HandleTable) Assign(typeName string, instance any) string {
	handle := uuid.Must(uuid.NewV7()).String()
	h.mu.Lock()
	h.m[handle] = tableSlot{instance: instance, typeName: typeName}
	h.mu.Unlock()
	return handle
}

// Get resolves a handle to its live instance.
func (h *HandleTable) Get(handle string) (any, bool) {
	h.mu.RLock()
	s, ok := h.m[handle]
	h.mu.RUnlock()
	return s.instance, ok
}

// Release removes a handle. The instance is no longer addressable.
func (h *HandleTable) Release(handle string) {
	h.mu.Lock()
	delete(h.m, handle)
	h.mu.Unlock()
}

// Snapshot lists the live non-root instances (those with assigned
// handles), sorted by handle for deterministic declaration order.
func (h *HandleTable) Snapshot() []Live {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Live
	for handle, s := range h.m {
		if s.typeName == "" {
			continue // root sentinel, declared parameterless
		}
		out = append(out, Live{Handle: handle, Type: s.typeName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
