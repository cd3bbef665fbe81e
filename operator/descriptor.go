// Package operator implements the host side of script execution: a
// registry of operator descriptors discovered by reflection, a method
// cache keyed by (type, name, arity), a concurrent handle table for
// live instances, the operator invoker that resolves and calls host
// methods, and the proxy/signature generator consumed by the script
// agent and the runners.
package operator

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// HandlePolicy describes how scripts address instances of an operator
// type.
type HandlePolicy int

const (
	// HandleAssigned instances are created by host methods and
	// addressed by opaque handles the script receives.
	HandleAssigned HandlePolicy = iota
	// SelfRooted instances exist from session start under a sentinel
	// handle equal to the type name; the proxy constructs them
	// parameterless.
	SelfRooted
	// Static operators are facades: every method call goes to one
	// host-owned singleton and carries no handle.
	Static
)

// Descriptor is the tagged record for one operator type: its exposed
// name, handle policy, and method entries.
type Descriptor struct {
	Name        string
	Description string
	Policy      HandlePolicy

	goType reflect.Type // concrete type methods are bound to
	root   reflect.Value // fixed receiver for SelfRooted and Static
	docs   map[string]string
}

// Registry holds all operator descriptors for one session plus the
// method cache and handle table they share.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	byGoType    map[reflect.Type]*Descriptor
	cache       *MethodCache
	handles     *HandleTable
	filter      func(*MethodEntry) bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		byGoType:    make(map[reflect.Type]*Descriptor),
		cache:       newMethodCache(),
		handles:     NewHandleTable(),
	}
}

// SetMethodFilter overlays a predicate on the method cache: entries the
// predicate rejects resolve as not-found and are omitted from proxies.
func (r *Registry) SetMethodFilter(f func(*MethodEntry) bool) {
	r.mu.Lock()
	r.filter = f
	r.mu.Unlock()
}

// Handles returns the registry's handle table.
func (r *Registry) Handles() *HandleTable { return r.handles }

// RegisterOption configures a Register call.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	name        string
	description string
	docs        map[string]string
	methods     []string
}

// WithName overrides the exposed operator type name.
// Default: the Go type name.
func WithName(name string) RegisterOption {
	return func(c *registerConfig) { c.name = name }
}

// WithDescription sets the human description shown in the signatures
// text.
func WithDescription(desc string) RegisterOption {
	return func(c *registerConfig) { c.description = desc }
}

// WithMethodDoc attaches a human description to one method.
func WithMethodDoc(method, doc string) RegisterOption {
	return func(c *registerConfig) {
		if c.docs == nil {
			c.docs = make(map[string]string)
		}
		c.docs[method] = doc
	}
}

// WithMethods restricts the exposed surface to the named methods.
// Default: every exported method.
func WithMethods(names ...string) RegisterOption {
	return func(c *registerConfig) { c.methods = append(c.methods, names...) }
}

// RegisterRoot registers instance as a self-rooted operator: it lives
// in the handle table from session start under a handle equal to its
// type name, and its proxy is constructed parameterless.
func (r *Registry) RegisterRoot(instance any, opts ...RegisterOption) error {
	d, err := r.register(instance, SelfRooted, opts)
	if err != nil {
		return err
	}
	r.handles.Put(d.Name, instance)
	return nil
}

// RegisterStatic registers instance as a static facade: method calls
// carry no handle and always dispatch to this singleton.
func (r *Registry) RegisterStatic(instance any, opts ...RegisterOption) error {
	d, err := r.register(instance, Static, opts)
	if err != nil {
		return err
	}
	r.handles.Put(d.Name, instance)
	return nil
}

// Register registers prototype's type as a handle-assigned operator.
// Instances are created by host methods that return this type; the
// prototype itself is used only for reflection.
func (r *Registry) Register(prototype any, opts ...RegisterOption) error {
	_, err := r.register(prototype, HandleAssigned, opts)
	return err
}

func (r *Registry) register(instance any, policy HandlePolicy, opts []RegisterOption) (*Descriptor, error) {
	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	v := reflect.ValueOf(instance)
	if !v.IsValid() {
		return nil, fmt.Errorf("operator: register nil instance")
	}
	t := v.Type()
	name := cfg.name
	if name == "" {
		name = bareTypeName(t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[name]; exists {
		return nil, fmt.Errorf("operator: duplicate operator type %q", name)
	}

	d := &Descriptor{
		Name:        name,
		Description: cfg.description,
		Policy:      policy,
		goType:      t,
		docs:        cfg.docs,
	}
	if policy != HandleAssigned {
		d.root = v
	}

	entries, err := discoverMethods(d, t, cfg)
	if err != nil {
		return nil, err
	}
	if err := r.cache.addAll(entries); err != nil {
		return nil, err
	}

	r.descriptors[name] = d
	r.byGoType[t] = d
	return d, nil
}

// Descriptor returns the descriptor for an exposed type name.
func (r *Registry) Descriptor(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// descriptorFor maps a runtime value's type back to its descriptor,
// following one level of pointer indirection. Used to recognize
// operator instances returned by host methods.
func (r *Registry) descriptorFor(t reflect.Type) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byGoType[t]; ok {
		return d, true
	}
	if t.Kind() != reflect.Pointer {
		if d, ok := r.byGoType[reflect.PointerTo(t)]; ok {
			return d, true
		}
	}
	return nil, false
}

// Lookup resolves (type, method, arity) through the cache, honoring
// the method filter when set.
func (r *Registry) Lookup(typeName, method string, arity int) (*MethodEntry, bool) {
	r.mu.RLock()
	filter := r.filter
	r.mu.RUnlock()
	e, ok := r.cache.Lookup(typeName, method, arity)
	if !ok {
		return nil, false
	}
	if filter != nil && !filter(e) {
		return nil, false
	}
	return e, true
}

// entriesFor returns the exposed (filtered) entries of one descriptor,
// sorted by name for deterministic proxy emission.
func (r *Registry) entriesFor(d *Descriptor) []*MethodEntry {
	r.mu.RLock()
	filter := r.filter
	r.mu.RUnlock()
	var out []*MethodEntry
	for _, e := range r.cache.entriesOf(d.Name) {
		if filter != nil && !filter(e) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Arity < out[j].Arity
	})
	return out
}

// sortedDescriptors returns descriptors ordered by name.
func (r *Registry) sortedDescriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// discoverMethods reflects over t's exported methods and builds one
// entry per method, trimming a trailing "Async" suffix from exposed
// names. A trim collision with an existing name is a build error.
func discoverMethods(d *Descriptor, t reflect.Type, cfg registerConfig) ([]*MethodEntry, error) {
	allowed := map[string]bool{}
	for _, m := range cfg.methods {
		allowed[m] = true
	}

	seen := map[string]string{} // exposed name -> raw name
	var entries []*MethodEntry
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		if len(allowed) > 0 && !allowed[m.Name] {
			continue
		}

		exposed := strings.TrimSuffix(m.Name, "Async")
		if exposed == "" {
			exposed = m.Name
		}
		if prev, dup := seen[exposed]; dup {
			return nil, fmt.Errorf("operator: %s: methods %s and %s collide on exposed name %q",
				d.Name, prev, m.Name, exposed)
		}
		seen[exposed] = m.Name

		e, err := newMethodEntry(d, m, exposed)
		if err != nil {
			return nil, err
		}
		if doc, ok := cfg.docs[m.Name]; ok {
			e.Doc = doc
		} else if doc, ok := cfg.docs[exposed]; ok {
			e.Doc = doc
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("operator: %s exposes no methods", d.Name)
	}
	return entries, nil
}

// newMethodEntry builds a MethodEntry from a reflected method. The
// receiver and an optional leading context.Context are excluded from
// the declared arity.
func newMethodEntry(d *Descriptor, m reflect.Method, exposed string) (*MethodEntry, error) {
	ft := m.Func.Type()

	in := ft.NumIn() - 1 // drop receiver
	params := make([]reflect.Type, 0, in)
	takesCtx := false
	for i := 1; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		if i == 1 && pt == ctxType {
			takesCtx = true
			continue
		}
		params = append(params, pt)
	}

	returnsErr := false
	var retType reflect.Type
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errType {
			returnsErr = true
		} else {
			retType = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errType {
			return nil, fmt.Errorf("operator: %s.%s: second return must be error", d.Name, m.Name)
		}
		retType = ft.Out(0)
		returnsErr = true
	default:
		return nil, fmt.Errorf("operator: %s.%s: too many return values", d.Name, m.Name)
	}

	arity := len(params)
	variadic := ft.IsVariadic()
	if variadic {
		arity-- // open definition: minimum arity excludes the variadic slot
	}

	return &MethodEntry{
		Type:         d.Name,
		Name:         exposed,
		RawName:      m.Name,
		Arity:        arity,
		Variadic:     variadic,
		TakesContext: takesCtx,
		ReturnsError: returnsErr,
		ReturnType:   retType,
		params:       params,
		fn:           m.Func,
		desc:         d,
	}, nil
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

func bareTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
