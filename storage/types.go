package storage

import (
	"context"
	"time"
)

// Status and VPN values with special meaning to the aggregation queries.
const (
	StatusSuccess      = "success"
	VPNConnected       = "connected"
	VPNDisconnected    = "disconnected"
	DefaultVPNName     = "none"
	PlaceholderBSSID   = "none"
	PlaceholderBand    = "none"
	DefaultListLimit   = 100
	MaxListLimit       = 1000
	DefaultDeviceLimit = 50
	MaxDeviceLimit     = 500
)

// Record is one speed-test observation submitted by a device.
// Optional text fields use "" for "not reported" and are stored as NULL.
type Record struct {
	ID int64 `json:"id"`

	// Identity
	DeviceID string `json:"device_id"`
	UserID   string `json:"user_id"`
	Hostname string `json:"hostname,omitempty"`

	// Metadata
	TimestampUTC time.Time `json:"timestamp_utc"`
	OSVersion    string    `json:"os_version,omitempty"`
	AppVersion   string    `json:"app_version,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`

	// Network interface
	Interface string `json:"interface,omitempty"`
	LocalIP   string `json:"local_ip,omitempty"`
	PublicIP  string `json:"public_ip,omitempty"`

	// WiFi details
	SSID       string  `json:"ssid,omitempty"`
	BSSID      string  `json:"bssid,omitempty"`
	Band       string  `json:"band,omitempty"`
	Channel    int64   `json:"channel"`
	WidthMHz   int64   `json:"width_mhz"`
	RSSIdBm    int64   `json:"rssi_dbm"`
	NoisedBm   int64   `json:"noise_dbm"`
	SNRdB      int64   `json:"snr_db"`
	TxRateMbps float64 `json:"tx_rate_mbps"`

	// Performance
	LatencyMs     float64 `json:"latency_ms"`
	JitterMs      float64 `json:"jitter_ms"`
	JitterP50     float64 `json:"jitter_p50"`
	JitterP95     float64 `json:"jitter_p95"`
	PacketLossPct float64 `json:"packet_loss_pct"`
	DownloadMbps  float64 `json:"download_mbps"`
	UploadMbps    float64 `json:"upload_mbps"`

	// VPN
	VPNStatus string `json:"vpn_status"`
	VPNName   string `json:"vpn_name"`

	// Outcome
	Status string `json:"status"`
	Errors string `json:"errors,omitempty"`

	// RawPayload is the submission as received, kept for replay. Never parsed by queries.
	RawPayload string `json:"raw_payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RecordFilter selects records by exact match. Empty fields do not filter.
type RecordFilter struct {
	DeviceID  string
	SSID      string
	VPNStatus string
}

// Page bounds a listing. Limit and Offset are clamped by the store.
type Page struct {
	Limit  int
	Offset int
}

// Store is the Record Store contract shared by the SQLite and PostgreSQL backends.
type Store interface {
	// Append commits one record and returns its server-assigned id.
	// rec.ID and rec.CreatedAt are set on success.
	Append(ctx context.Context, rec *Record) (int64, error)
	// Query lists records newest first.
	Query(ctx context.Context, filter RecordFilter, page Page) ([]*Record, error)
	// GetByDevice lists one device's records newest first.
	GetByDevice(ctx context.Context, deviceID string, limit int) ([]*Record, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
	// Snapshot runs fn against one consistent read view of the store.
	Snapshot(ctx context.Context, fn func(*Snapshot) error) error

	Dialect() Dialect
	Ping(ctx context.Context) error
	Close() error
}

// ListLimits are the caps applied to listings.
type ListLimits struct {
	DefaultList   int
	MaxList       int
	DefaultDevice int
	MaxDevice     int
}

// DefaultListLimits mirrors the limits served by the HTTP API.
func DefaultListLimits() ListLimits {
	return ListLimits{
		DefaultList:   DefaultListLimit,
		MaxList:       MaxListLimit,
		DefaultDevice: DefaultDeviceLimit,
		MaxDevice:     MaxDeviceLimit,
	}
}

// clamp returns def for non-positive n and max for n above max.
func clamp(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}
