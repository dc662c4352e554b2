package vm

import "plugin"

// ExtensionFunc is the native entry point signature a loaded library must
// export: it receives the running VM and returns an i32 status, currently
// ignored by the caller per spec.md section 4.6.
type ExtensionFunc func(*VM) int32

// ExtensionLoader is the dynamic library registry of spec.md section 4.6
// and section 5: libraries are opened on demand by load_external and kept
// open for the VM's lifetime; symbol lookup searches every loaded library
// in insertion order and returns the first match. Grounded conceptually on
// the teacher's device registry (KTStephano-GVM/vm/devices.go's ordered
// device slots resolved by index), adapted from slot-index resolution to
// path-then-symbol resolution.
type ExtensionLoader struct {
	libs []*plugin.Plugin
}

// NewExtensionLoader returns an empty loader.
func NewExtensionLoader() *ExtensionLoader {
	return &ExtensionLoader{}
}

// Load opens the shared object at path and keeps it registered for the
// VM's lifetime.
func (l *ExtensionLoader) Load(path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return err
	}
	l.libs = append(l.libs, p)
	return nil
}

// Resolve searches every loaded library in insertion order for a symbol
// named name that satisfies ExtensionFunc.
func (l *ExtensionLoader) Resolve(name string) (ExtensionFunc, error) {
	for _, lib := range l.libs {
		sym, err := lib.Lookup(name)
		if err != nil {
			continue
		}
		if fn, ok := sym.(func(*VM) int32); ok {
			return ExtensionFunc(fn), nil
		}
	}
	return nil, errExtensionSymbolNotFound
}

// Call resolves name and invokes it synchronously, per spec.md section
// 4.6's call_ex semantics.
func (l *ExtensionLoader) Call(name string, m *VM) (int32, error) {
	fn, err := l.Resolve(name)
	if err != nil {
		return 0, err
	}
	return fn(m), nil
}
