package feeding

import "sync"

var (
	mu       sync.RWMutex
	services = map[string]Service{}
	parsers  = map[string]struct{}{}
)

// Register adds a feeding service under its type name. Registering twice
// replaces the previous entry.
func Register(name string, svc Service) {
	mu.Lock()
	defer mu.Unlock()
	services[name] = svc
}

func Get(name string) (Service, bool) {
	mu.RLock()
	defer mu.RUnlock()
	svc, ok := services[name]
	return svc, ok
}

// RegisterParser records a feed parser name so providers referencing it can
// be scheduled. Parsers themselves are owned by the services that use them.
func RegisterParser(name string) {
	mu.Lock()
	defer mu.Unlock()
	parsers[name] = struct{}{}
}

func ParserRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := parsers[name]
	return ok
}

// IsRegistered reports whether a provider's feeding service, and its feed
// parser when one is set, are both available. Unregistered providers are
// skipped silently by the scheduler.
func IsRegistered(service, parser string) bool {
	mu.RLock()
	defer mu.RUnlock()
	if _, ok := services[service]; !ok {
		return false
	}
	if parser == "" {
		return true
	}
	_, ok := parsers[parser]
	return ok
}
