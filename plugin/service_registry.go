package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ServiceRegistry shares services between plugins. Keys are namespaced
// "owner.service" (e.g. "banking.accounts", "core.crypter"): the owner is
// the publishing plugin (or "core" for runtime services), so consumers can
// enumerate what a given plugin exposes without knowing its key layout.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]serviceEntry
}

type serviceEntry struct {
	owner string
	value any
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]serviceEntry),
	}
}

// splitServiceKey enforces the owner.service key form.
func splitServiceKey(key string) (string, error) {
	owner, service, ok := strings.Cut(key, ".")
	if !ok || owner == "" || service == "" {
		return "", fmt.Errorf("service key %q must have the form owner.service", key)
	}
	return owner, nil
}

// Register publishes a service under a namespaced key. Malformed keys and
// re-publishing an existing key fail.
func (sr *ServiceRegistry) Register(key string, svc any) error {
	owner, err := splitServiceKey(key)
	if err != nil {
		return err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	if _, exists := sr.services[key]; exists {
		return fmt.Errorf("service %q already registered", key)
	}
	sr.services[key] = serviceEntry{owner: owner, value: svc}
	return nil
}

// MustRegister publishes a service, panicking on a malformed or taken key.
func (sr *ServiceRegistry) MustRegister(key string, svc any) {
	if err := sr.Register(key, svc); err != nil {
		panic(err)
	}
}

// Has reports whether a service is registered under the given key.
func (sr *ServiceRegistry) Has(key string) bool {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	_, exists := sr.services[key]
	return exists
}

// Keys returns all registered service keys, sorted.
func (sr *ServiceRegistry) Keys() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	keys := make([]string, 0, len(sr.services))
	for k := range sr.services {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OwnedBy returns the keys a single plugin has published, sorted.
func (sr *ServiceRegistry) OwnedBy(owner string) []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	var keys []string
	for k, entry := range sr.services {
		if entry.owner == owner {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Resolve retrieves a service with compile-time type safety via generics.
func Resolve[T any](sr *ServiceRegistry, key string) (T, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	var zero T
	entry, exists := sr.services[key]
	if !exists {
		return zero, fmt.Errorf("service %q not found", key)
	}

	typed, ok := entry.value.(T)
	if !ok {
		return zero, fmt.Errorf("service %q is %T, want %T", key, entry.value, zero)
	}
	return typed, nil
}

// MustResolve retrieves a service, panicking if not found or wrong type.
func MustResolve[T any](sr *ServiceRegistry, key string) T {
	svc, err := Resolve[T](sr, key)
	if err != nil {
		panic(err)
	}
	return svc
}
