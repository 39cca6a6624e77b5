package sqlstore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"constellation"
	"constellation/sql/adapter"
)

// SettingSupportsJSON is the durable setting holding the capability
// decision as "1" or "0".
const SettingSupportsJSON = "db_supports_json"

// Detector decides whether the connected server stores the document column
// natively as JSON. The decision is resolved from memory, then from the
// persisted setting, then by probing the server version, and is cached for
// the lifetime of the detector.
type Detector struct {
	exec     *QueryExecutor
	adapter  adapter.Adapter
	settings *Settings
	logger   *zap.Logger

	mu     sync.RWMutex
	cached *bool
	info   *adapter.ServerInfo
}

// NewDetector creates a detector. settings may be nil, in which case the
// decision is never read from or written to the store.
func NewDetector(exec *QueryExecutor, adpt adapter.Adapter, settings *Settings, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{exec: exec, adapter: adpt, settings: settings, logger: logger}
}

func (d *Detector) cachedValue() (bool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cached == nil {
		return false, false
	}
	return *d.cached, true
}

func (d *Detector) store(v bool) {
	d.mu.Lock()
	d.cached = &v
	d.mu.Unlock()
}

// SupportsJSON returns the capability decision. A failed probe returns a
// CapabilityError and leaves nothing cached.
func (d *Detector) SupportsJSON(ctx context.Context) (bool, error) {
	if v, ok := d.cachedValue(); ok {
		return v, nil
	}
	if d.settings != nil {
		value, ok, err := d.settings.Get(ctx, SettingSupportsJSON)
		switch {
		case err != nil:
			// The settings table does not exist before the schema is created.
			d.logger.Debug("capability setting unavailable", zap.Error(err))
		case ok:
			v := value == "1"
			d.store(v)
			return v, nil
		}
	}
	return d.Probe(ctx)
}

// Native returns the decision, falling back to the text column when it
// cannot be made.
func (d *Detector) Native(ctx context.Context) bool {
	v, err := d.SupportsJSON(ctx)
	if err != nil {
		d.logger.Warn("capability unknown, using text document column", zap.Error(err))
		return false
	}
	return v
}

// Probe queries the server version and caches the resulting decision.
func (d *Detector) Probe(ctx context.Context) (bool, error) {
	var raw string
	if err := d.exec.QueryRowRaw(ctx, d.adapter.VersionQuery()).Scan(&raw); err != nil {
		return false, constellation.WrapCapabilityError(err, "version probe")
	}
	info := d.adapter.ParseServerInfo(raw)
	v := d.adapter.SupportsJSON(info)

	d.mu.Lock()
	d.cached = &v
	d.info = &info
	d.mu.Unlock()

	d.logger.Info("storage capability detected",
		zap.String("family", string(info.Family)),
		zap.String("version", info.Version.String()),
		zap.Bool("native_json", v))
	return v, nil
}

// Force fixes the decision without probing.
func (d *Detector) Force(native bool) {
	d.store(native)
}

// ServerInfo returns what the last probe found, if one ran.
func (d *Detector) ServerInfo() (adapter.ServerInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.info == nil {
		return adapter.ServerInfo{}, false
	}
	return *d.info, true
}

// Persist writes the cached decision to the settings table.
func (d *Detector) Persist(ctx context.Context) error {
	v, ok := d.cachedValue()
	if !ok || d.settings == nil {
		return nil
	}
	value := "0"
	if v {
		value = "1"
	}
	return d.settings.Set(ctx, SettingSupportsJSON, value)
}

// Forget drops the cached decision.
func (d *Detector) Forget() {
	d.mu.Lock()
	d.cached = nil
	d.info = nil
	d.mu.Unlock()
}

// Reset forgets the cached decision and removes the persisted one, so the
// next call probes again.
func (d *Detector) Reset(ctx context.Context) error {
	d.Forget()
	if d.settings == nil {
		return nil
	}
	return d.settings.Delete(ctx, SettingSupportsJSON)
}
