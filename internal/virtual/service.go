package virtual

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Publisher is the bus surface a virtual service publishes through.
// *bus.Client satisfies it.
type Publisher interface {
	PublishService(service string, values map[string]any) error
	SetValue(service, path string, value any) error
	RemoveService(service string, paths []string) error
	SubscribeWrites(service string, fn func(path string, value any)) error
	UnsubscribeWrites(service string) error
}

// ValueStore persists the last published values of a device.
type ValueStore interface {
	SaveValues(ctx context.Context, localID string, values map[string]any) error
	LoadValues(ctx context.Context, localID string) (map[string]any, error)
}

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const storeTimeout = 5 * time.Second

// identityPaths are owned by the runtime and never restored from the store.
var identityPaths = map[string]bool{
	"/DeviceInstance":      true,
	"/Mgmt/ProcessName":    true,
	"/Mgmt/ProcessVersion": true,
	"/Mgmt/Connection":     true,
}

// DefaultValues returns the paths every virtual service starts with.
func DefaultValues(deviceType string, instance int, productName string) map[string]any {
	if productName == "" {
		productName = "Virtual " + deviceType
	}
	return map[string]any{
		"/DeviceInstance":      instance,
		"/Mgmt/ProcessName":    "victron-bridge",
		"/Mgmt/ProcessVersion": "1",
		"/Mgmt/Connection":     "Virtual",
		"/ProductName":         productName,
		"/CustomName":          "",
		"/Connected":           1,
	}
}

// Service is the bus side of one virtual device. It implements Setter.
type Service struct {
	name    string
	localID string
	pub     Publisher
	store   ValueStore
	logger  Logger

	mu      sync.Mutex
	values  map[string]any
	onWrite func(path string, value any)
	started bool
}

// NewService creates an unpublished service. store may be nil.
func NewService(name, localID string, pub Publisher, store ValueStore) *Service {
	return &Service{
		name:    name,
		localID: localID,
		pub:     pub,
		store:   store,
		logger:  noopLogger{},
		values:  make(map[string]any),
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// OnWrite sets fn to be called after a bus client writes to one of the
// service's paths.
func (s *Service) OnWrite(fn func(path string, value any)) {
	s.mu.Lock()
	s.onWrite = fn
	s.mu.Unlock()
}

// Name returns the bus service name.
func (s *Service) Name() string {
	return s.name
}

// Start publishes the service with initial values overlaid by any stored
// values, then accepts writes from the bus.
func (s *Service) Start(ctx context.Context, initial map[string]any) error {
	values := make(map[string]any, len(initial))
	for p, v := range initial {
		values[p] = v
	}

	if s.store != nil {
		stored, err := s.store.LoadValues(ctx, s.localID)
		if err != nil {
			s.logger.Warn("loading stored values failed", "service", s.name, "error", err)
		}
		for p, v := range stored {
			if !identityPaths[p] {
				values[p] = v
			}
		}
	}

	if err := s.pub.PublishService(s.name, values); err != nil {
		return fmt.Errorf("publishing %s: %w", s.name, err)
	}
	if err := s.pub.SubscribeWrites(s.name, s.handleWrite); err != nil {
		return fmt.Errorf("subscribing to writes for %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.values = values
	s.started = true
	s.mu.Unlock()
	return nil
}

// connectivity is implemented by publishers that know the bus state.
// *bus.Client does.
type connectivity interface {
	IsConnected() bool
}

// SetValues publishes the values that differ from the current ones.
//
// When the publisher reports the bus as down nothing is published and
// ErrNotConnected is returned. A publish failing partway is a transient
// I/O error: the paths published before it stay current and stored, the
// count reports them, and the remaining paths are left for a later update.
func (s *Service) SetValues(values map[string]any) (int, error) {
	if c, ok := s.pub.(connectivity); ok && !c.IsConnected() {
		return 0, fmt.Errorf("setting %s: %w", s.name, ErrNotConnected)
	}

	s.mu.Lock()
	paths := make([]string, 0, len(values))
	for p, v := range values {
		if cur, ok := s.values[p]; !ok || !sameValue(cur, v) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	s.mu.Unlock()

	changed := 0
	for _, p := range paths {
		if err := s.pub.SetValue(s.name, p, values[p]); err != nil {
			if changed > 0 {
				s.persist()
			}
			return changed, fmt.Errorf("setting %s%s: %w", s.name, p, err)
		}
		s.mu.Lock()
		s.values[p] = values[p]
		s.mu.Unlock()
		changed++
	}

	if changed > 0 {
		s.persist()
	}
	return changed, nil
}

// Values returns a copy of the current values.
func (s *Service) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for p, v := range s.values {
		out[p] = v
	}
	return out
}

// Stop removes the service from the bus. Stored values are kept.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	paths := make([]string, 0, len(s.values))
	for p := range s.values {
		paths = append(paths, p)
	}
	s.mu.Unlock()
	sort.Strings(paths)

	if err := s.pub.UnsubscribeWrites(s.name); err != nil {
		s.logger.Debug("unsubscribing writes failed", "service", s.name, "error", err)
	}
	return s.pub.RemoveService(s.name, paths)
}

func (s *Service) handleWrite(path string, value any) {
	if strings.HasPrefix(path, "/Mgmt/") || path == "/DeviceInstance" {
		s.logger.Debug("ignoring write to read-only path", "service", s.name, "path", path)
		return
	}
	if _, err := s.SetValues(map[string]any{path: value}); err != nil {
		s.logger.Warn("applying bus write failed", "service", s.name, "path", path, "error", err)
		return
	}

	s.mu.Lock()
	fn := s.onWrite
	s.mu.Unlock()
	if fn != nil {
		fn(path, value)
	}
}

func (s *Service) persist() {
	if s.store == nil {
		return
	}
	values := s.Values()
	for p := range identityPaths {
		delete(values, p)
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.SaveValues(ctx, s.localID, values); err != nil {
		s.logger.Warn("storing values failed", "service", s.name, "error", err)
	}
}

// sameValue compares by JSON encoding so 1 and 1.0 are equal.
func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}
