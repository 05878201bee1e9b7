// Package monitor is the speed monitor's core boundary. The HTTP layer
// translates requests into these calls and their *Error results into
// status codes.
package monitor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hyperkishore/home-internet/ingest"
	"github.com/hyperkishore/home-internet/livefeed"
	"github.com/hyperkishore/home-internet/observability"
	"github.com/hyperkishore/home-internet/stats"
	"github.com/hyperkishore/home-internet/storage"
)

// Version is reported by GetServiceStatus.
const Version = "2.0.0"

// Feed receives committed records for live subscribers.
type Feed interface {
	Broadcast(msg livefeed.Message) bool
}

// Options wire optional collaborators. Nil fields are skipped.
type Options struct {
	Metrics *observability.Metrics
	Feed    Feed
	Now     func() time.Time
}

// SubmitResult acknowledges a stored record.
type SubmitResult struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

// ServiceStatus is the health probe payload.
type ServiceStatus struct {
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	Version      string `json:"version"`
	TotalResults int64  `json:"total_results"`
}

// Service implements the submit, list and stats operations.
type Service struct {
	store   storage.Store
	engine  *stats.Engine
	metrics *observability.Metrics
	feed    Feed
	now     func() time.Time
}

// New returns a Service over store and engine.
func New(store storage.Store, engine *stats.Engine, opts Options) (*Service, error) {
	if store == nil || engine == nil {
		return nil, errors.New("monitor: store and engine are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:   store,
		engine:  engine,
		metrics: opts.Metrics,
		feed:    opts.Feed,
		now:     opts.Now,
	}, nil
}

// SubmitRecord validates one raw JSON submission, stores it and announces it
// on the live feed. Invalid input never reaches the store.
func (s *Service) SubmitRecord(ctx context.Context, raw []byte) (res *SubmitResult, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(ctx, "submit_record", start, err) }()

	rec, err := ingest.Normalize(raw, s.now())
	if err != nil {
		e := classify("submit record", err)
		s.metrics.Rejected(ctx, e.Code)
		logs.Warn("submission rejected", "code", e.Code, "message", e.Message)
		return nil, e
	}

	id, err := s.store.Append(ctx, rec)
	if err != nil {
		e := classify("store record", err)
		s.metrics.Rejected(ctx, e.Code)
		logs.Error("failed to store submission", "device_id", rec.DeviceID, "code", e.Code, "error", err)
		return nil, e
	}
	s.metrics.Accepted(ctx)
	logs.Debug("record stored", "device_id", rec.DeviceID, "id", id)

	s.publish(ctx, rec)
	return &SubmitResult{Success: true, ID: id}, nil
}

// publish hands a copy of rec, minus the raw payload, to the live feed.
func (s *Service) publish(ctx context.Context, rec *storage.Record) {
	if s.feed == nil {
		return
	}
	out := *rec
	out.RawPayload = ""
	if s.feed.Broadcast(livefeed.Message{Type: livefeed.MessageTypeRecordStored, Data: &out, Timestamp: s.now().UTC()}) {
		s.metrics.Published(ctx)
	}
}

// ListRecords returns records matching filter, newest first.
func (s *Service) ListRecords(ctx context.Context, filter storage.RecordFilter, limit, offset int) (recs []*storage.Record, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(ctx, "list_records", start, err) }()

	recs, err = s.store.Query(ctx, filter, storage.Page{Limit: limit, Offset: offset})
	if err != nil {
		return nil, s.fail("list records", err)
	}
	return recs, nil
}

// ListDeviceRecords returns one device's records, newest first.
func (s *Service) ListDeviceRecords(ctx context.Context, deviceID string, limit int) (recs []*storage.Record, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(ctx, "list_device_records", start, err) }()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, &Error{Code: CodeMissingDeviceID, Message: "device_id is required"}
	}
	recs, err = s.store.GetByDevice(ctx, deviceID, limit)
	if err != nil {
		return nil, s.fail("list device records", err)
	}
	return recs, nil
}

// GetOverallStats returns the fleet summary, per-device table and hourly trend.
func (s *Service) GetOverallStats(ctx context.Context) (view *stats.OverallView, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(ctx, "overall_stats", start, err) }()

	if view, err = s.engine.Overall(ctx); err != nil {
		return nil, s.fail("overall stats", err)
	}
	return view, nil
}

// GetWifiStats returns access point, network and band breakdowns.
func (s *Service) GetWifiStats(ctx context.Context) (view *stats.WifiView, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(ctx, "wifi_stats", start, err) }()

	if view, err = s.engine.Wifi(ctx); err != nil {
		return nil, s.fail("wifi stats", err)
	}
	return view, nil
}

// GetVpnStats returns the VPN distribution and on/off comparison.
func (s *Service) GetVpnStats(ctx context.Context) (view *stats.VPNView, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(ctx, "vpn_stats", start, err) }()

	if view, err = s.engine.VPN(ctx); err != nil {
		return nil, s.fail("vpn stats", err)
	}
	return view, nil
}

// GetJitterStats returns the jitter histogram, quantiles and problem devices.
func (s *Service) GetJitterStats(ctx context.Context) (view *stats.JitterView, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(ctx, "jitter_stats", start, err) }()

	if view, err = s.engine.Jitter(ctx); err != nil {
		return nil, s.fail("jitter stats", err)
	}
	return view, nil
}

// GetDeviceHealth summarizes one device. Unknown devices get zero counts.
func (s *Service) GetDeviceHealth(ctx context.Context, deviceID string) (view *stats.DeviceHealthView, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation(ctx, "device_health", start, err) }()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, &Error{Code: CodeMissingDeviceID, Message: "device_id is required"}
	}
	if view, err = s.engine.DeviceHealth(ctx, deviceID); err != nil {
		return nil, s.fail("device health", err)
	}
	return view, nil
}

// GetServiceStatus reports liveness and the stored record count.
func (s *Service) GetServiceStatus(ctx context.Context) (*ServiceStatus, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, s.fail("service status", err)
	}
	return &ServiceStatus{
		Status:       "ok",
		Timestamp:    s.now().UTC().Format(time.RFC3339),
		Version:      Version,
		TotalResults: total,
	}, nil
}

func (s *Service) fail(op string, err error) *Error {
	e := classify(op, err)
	logs.Error(op+" failed", "code", e.Code, "error", err)
	return e
}
