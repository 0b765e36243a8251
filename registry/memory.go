package registry

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/absfs/mfr/win32"
)

// Memory is an in-memory registry. Key and value names are matched
// case-insensitively and keep the case they were created with. Subkeys
// enumerate in case-insensitive name order, values in creation order.
type Memory struct {
	mu       sync.RWMutex
	hives    map[Hive]*node
	readOnly []protected
}

type protected struct {
	hive   Hive
	prefix string
}

type node struct {
	name     string
	children map[string]*node
	values   []Value
}

func newNode(name string) *node {
	return &node{name: name, children: make(map[string]*node)}
}

func foldKey(s string) string {
	return strings.ToUpper(s)
}

// MemoryOption configures a Memory registry
type MemoryOption func(*Memory)

// WithReadOnly denies write access at and below prefix in hive, the way
// HKLM behaves for a standard user.
func WithReadOnly(hive Hive, prefix string) MemoryOption {
	return func(m *Memory) {
		m.Protect(hive, prefix)
	}
}

// Protect makes prefix in hive read-only from now on. Keys created before
// the call stay readable.
func (m *Memory) Protect(hive Hive, prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = append(m.readOnly, protected{hive: hive, prefix: CleanPath(prefix)})
}

// NewMemory creates an empty registry
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{hives: make(map[Hive]*node)}
	for h := range hiveNames {
		m.hives[Hive(h)] = newNode(Hive(h).String())
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) isReadOnly(hive Hive, path string) bool {
	for _, p := range m.readOnly {
		if p.hive != hive {
			continue
		}
		if p.prefix == "" || strings.EqualFold(path, p.prefix) ||
			(len(path) > len(p.prefix) && strings.EqualFold(path[:len(p.prefix)], p.prefix) && path[len(p.prefix)] == '\\') {
			return true
		}
	}
	return false
}

// find walks to path; the caller holds mu
func (m *Memory) find(hive Hive, path string) *node {
	n := m.hives[hive]
	if n == nil {
		return nil
	}
	if path == "" {
		return n
	}
	for _, part := range strings.Split(path, `\`) {
		n = n.children[foldKey(part)]
		if n == nil {
			return nil
		}
	}
	return n
}

// OpenKey opens an existing key
func (m *Memory) OpenKey(ctx context.Context, hive Hive, path string, access win32.RegAccess) (Key, error) {
	path = CleanPath(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.find(hive, path) == nil {
		return Key{}, win32.ERROR_FILE_NOT_FOUND
	}
	access, err := m.grant(hive, path, access)
	if err != nil {
		return Key{}, err
	}
	return Key{Hive: hive, Path: path, Access: access}, nil
}

// grant resolves MAXIMUM_ALLOWED and denies writes under a read-only prefix
func (m *Memory) grant(hive Hive, path string, access win32.RegAccess) (win32.RegAccess, error) {
	ro := m.isReadOnly(hive, path)
	if access&win32.KEY_MAXIMUM_ALLOWED != 0 {
		if ro {
			return win32.KEY_READ, nil
		}
		return win32.KEY_ALL_ACCESS, nil
	}
	if ro && access.Writes() {
		return 0, win32.ERROR_ACCESS_DENIED
	}
	return access, nil
}

// CreateKey opens or creates a key and its ancestors
func (m *Memory) CreateKey(ctx context.Context, hive Hive, path string, access win32.RegAccess) (Key, bool, error) {
	path = CleanPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()

	exists := m.find(hive, path) != nil
	if !exists && m.isReadOnly(hive, path) {
		return Key{}, false, win32.ERROR_ACCESS_DENIED
	}
	access, err := m.grant(hive, path, access)
	if err != nil {
		return Key{}, false, err
	}
	if exists {
		return Key{Hive: hive, Path: path, Access: access}, false, nil
	}

	n := m.hives[hive]
	if n == nil {
		return Key{}, false, win32.ERROR_INVALID_HANDLE
	}
	if path != "" {
		for _, part := range strings.Split(path, `\`) {
			child := n.children[foldKey(part)]
			if child == nil {
				child = newNode(part)
				n.children[foldKey(part)] = child
			}
			n = child
		}
	}
	return Key{Hive: hive, Path: path, Access: access}, true, nil
}

// DeleteKey removes a key without subkeys
func (m *Memory) DeleteKey(ctx context.Context, hive Hive, path string) error {
	path = CleanPath(path)
	if path == "" {
		return win32.ERROR_ACCESS_DENIED
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.find(hive, path)
	if n == nil {
		return win32.ERROR_FILE_NOT_FOUND
	}
	if len(n.children) > 0 || m.isReadOnly(hive, path) {
		return win32.ERROR_ACCESS_DENIED
	}
	parentPath, name := "", path
	if i := strings.LastIndexByte(path, '\\'); i >= 0 {
		parentPath, name = path[:i], path[i+1:]
	}
	parent := m.find(hive, parentPath)
	delete(parent.children, foldKey(name))
	return nil
}

// keyNode resolves an opened key, which may have been deleted since
func (m *Memory) keyNode(k Key, need win32.RegAccess) (*node, error) {
	if k.Access&need != need {
		return nil, win32.ERROR_ACCESS_DENIED
	}
	n := m.find(k.Hive, k.Path)
	if n == nil {
		return nil, win32.ERROR_KEY_DELETED
	}
	return n, nil
}

// EnumKey returns the index'th subkey name
func (m *Memory) EnumKey(ctx context.Context, k Key, index int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, err := m.keyNode(k, win32.KEY_ENUMERATE_SUB_KEYS)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(n.children))
	for _, c := range n.children {
		names = append(names, c.name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(foldKey(a), foldKey(b))
	})
	if index < 0 || index >= len(names) {
		return "", win32.ERROR_NO_MORE_ITEMS
	}
	return names[index], nil
}

// EnumValue returns the index'th value
func (m *Memory) EnumValue(ctx context.Context, k Key, index int) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, err := m.keyNode(k, win32.KEY_QUERY_VALUE)
	if err != nil {
		return Value{}, err
	}
	if index < 0 || index >= len(n.values) {
		return Value{}, win32.ERROR_NO_MORE_ITEMS
	}
	return cloneValue(n.values[index]), nil
}

// QueryValue returns the named value; "" names the default value
func (m *Memory) QueryValue(ctx context.Context, k Key, name string) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, err := m.keyNode(k, win32.KEY_QUERY_VALUE)
	if err != nil {
		return Value{}, err
	}
	if i := valueIndex(n, name); i >= 0 {
		return cloneValue(n.values[i]), nil
	}
	return Value{}, win32.ERROR_FILE_NOT_FOUND
}

// SetValue creates or replaces a value
func (m *Memory) SetValue(ctx context.Context, k Key, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.keyNode(k, win32.KEY_SET_VALUE)
	if err != nil {
		return err
	}
	if m.isReadOnly(k.Hive, k.Path) {
		return win32.ERROR_ACCESS_DENIED
	}
	v = cloneValue(v)
	if i := valueIndex(n, v.Name); i >= 0 {
		v.Name = n.values[i].Name
		n.values[i] = v
		return nil
	}
	n.values = append(n.values, v)
	return nil
}

// DeleteValue removes a value
func (m *Memory) DeleteValue(ctx context.Context, k Key, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.keyNode(k, win32.KEY_SET_VALUE)
	if err != nil {
		return err
	}
	if m.isReadOnly(k.Hive, k.Path) {
		return win32.ERROR_ACCESS_DENIED
	}
	i := valueIndex(n, name)
	if i < 0 {
		return win32.ERROR_FILE_NOT_FOUND
	}
	n.values = slices.Delete(n.values, i, i+1)
	return nil
}

func valueIndex(n *node, name string) int {
	for i, v := range n.values {
		if strings.EqualFold(v.Name, name) {
			return i
		}
	}
	return -1
}

func cloneValue(v Value) Value {
	v.Data = slices.Clone(v.Data)
	return v
}
