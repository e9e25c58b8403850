package virtual

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/metrics"
)

// Claim is the identity a node holds for its virtual device.
type Claim struct {
	NodeID     string `json:"node_id"`
	LocalID    string `json:"local_id"`
	DeviceType string `json:"device_type"`
	Instance   int    `json:"instance"`
	Service    string `json:"service"`
}

// Manager allocates device instances and removes orphaned settings.
type Manager struct {
	repo    Repository
	base    int
	logger  Logger
	metrics *metrics.Metrics

	// mu serialises Claim so two nodes never get the same instance.
	mu sync.Mutex
}

// NewManager creates a Manager allocating instances from base upwards.
func NewManager(repo Repository, base int) *Manager {
	if base < 0 {
		base = 0
	}
	return &Manager{repo: repo, base: base, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(l Logger) {
	if l != nil {
		m.logger = l
	}
}

// SetMetrics enables reconciliation counters.
func (m *Manager) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// Claim returns the identity for nodeID's device of deviceType. An
// existing entry of the same type keeps its instance, otherwise the
// lowest free instance at or above the base is allocated and persisted.
func (m *Manager) Claim(ctx context.Context, nodeID, deviceType string) (Claim, error) {
	if strings.TrimSpace(nodeID) == "" {
		return Claim{}, ErrInvalidNodeID
	}
	if !ValidDeviceType(deviceType) {
		return Claim{}, fmt.Errorf("%w: %q", ErrInvalidDeviceType, deviceType)
	}

	localID := LocalID(nodeID)
	claim := Claim{
		NodeID:     nodeID,
		LocalID:    localID,
		DeviceType: deviceType,
		Service:    ServiceName(deviceType, localID),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.repo.List(ctx)
	if err != nil {
		return Claim{}, err
	}

	used := make(map[int]bool)
	for _, e := range entries {
		t, inst, err := ParseClassAndInstance(e.ClassAndVrmInstance)
		if err != nil {
			continue
		}
		if e.LocalID == localID && t == deviceType {
			claim.Instance = inst
			return claim, nil
		}
		if t == deviceType && e.LocalID != localID {
			used[inst] = true
		}
	}

	inst := m.base
	for used[inst] {
		inst++
	}
	claim.Instance = inst

	if err := m.repo.Upsert(ctx, Entry{LocalID: localID, ClassAndVrmInstance: FormatClassAndInstance(deviceType, inst)}); err != nil {
		return Claim{}, err
	}
	m.logger.Info("virtual device instance claimed",
		"node_id", nodeID,
		"local_id", localID,
		"type", deviceType,
		"instance", inst,
	)
	return claim, nil
}

// Release deletes the settings of nodeID's device.
func (m *Manager) Release(ctx context.Context, nodeID string) error {
	_, err := m.repo.Delete(ctx, LocalID(nodeID))
	return err
}

// Entries returns all persisted settings entries.
func (m *Manager) Entries(ctx context.Context) ([]Entry, error) {
	return m.repo.List(ctx)
}

// RemoveOrphans deletes the settings of every entry whose service is not
// in activeServices. Entries it cannot judge are logged and kept.
func (m *Manager) RemoveOrphans(ctx context.Context, activeServices []string) (Plan, error) {
	entries, err := m.repo.List(ctx)
	if err != nil {
		return Plan{}, err
	}

	plan := Analyze(entries, activeServices)
	for _, s := range plan.Skipped {
		m.logger.Info("reconcile skipped entry", "local_id", s.LocalID, "reason", s.Reason)
	}
	if m.metrics != nil {
		m.metrics.ReconcileSkips.Add(float64(len(plan.Skipped)))
	}
	if len(plan.Remove) == 0 {
		return plan, nil
	}

	n, err := m.repo.Delete(ctx, plan.Remove...)
	if err != nil {
		return plan, fmt.Errorf("removing orphaned devices: %w", err)
	}
	if m.metrics != nil {
		m.metrics.ReconcileRemovals.Add(float64(n))
	}
	m.logger.Info("orphaned virtual devices removed", "count", n, "local_ids", plan.Remove)
	return plan, nil
}

// Lookup returns the entry for nodeID, or ErrEntryNotFound.
func (m *Manager) Lookup(ctx context.Context, nodeID string) (Entry, error) {
	return m.repo.Get(ctx, LocalID(nodeID))
}
