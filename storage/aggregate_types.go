package storage

import "time"

// Aggregate rows returned by Snapshot. Means are unrounded and nil when no
// row contributed; presentation rounding belongs to the caller.

// OverallStats summarizes every successful record.
type OverallStats struct {
	TotalTests    int64    `json:"total_tests"`
	TotalDevices  int64    `json:"total_devices"`
	AvgDownload   *float64 `json:"avg_download"`
	AvgUpload     *float64 `json:"avg_upload"`
	AvgLatency    *float64 `json:"avg_latency"`
	AvgJitter     *float64 `json:"avg_jitter"`
	AvgPacketLoss *float64 `json:"avg_packet_loss"`
	MinDownload   *float64 `json:"min_download"`
	MaxDownload   *float64 `json:"max_download"`
}

// DeviceStats summarizes one device's successful records. Descriptive
// fields come from the device's latest successful record.
type DeviceStats struct {
	DeviceID      string    `json:"device_id"`
	Hostname      string    `json:"hostname"`
	OSVersion     string    `json:"os_version"`
	AppVersion    string    `json:"app_version"`
	TestCount     int64     `json:"test_count"`
	AvgDownload   *float64  `json:"avg_download"`
	AvgUpload     *float64  `json:"avg_upload"`
	AvgLatency    *float64  `json:"avg_latency"`
	AvgJitter     *float64  `json:"avg_jitter"`
	AvgPacketLoss *float64  `json:"avg_packet_loss"`
	LastTest      time.Time `json:"last_test"`
	VPNStatus     string    `json:"vpn_status"`
	VPNName       string    `json:"vpn_name"`
}

// HourlyStats is one hour bucket of the rolling trend.
type HourlyStats struct {
	Hour        string   `json:"hour"`
	AvgDownload *float64 `json:"avg_download"`
	AvgUpload   *float64 `json:"avg_upload"`
	AvgJitter   *float64 `json:"avg_jitter"`
	TestCount   int64    `json:"test_count"`
}

// AccessPointStats groups successful records by BSSID.
type AccessPointStats struct {
	BSSID         string   `json:"bssid"`
	SSID          string   `json:"ssid"`
	Band          string   `json:"band"`
	Channel       int64    `json:"channel"`
	TestCount     int64    `json:"test_count"`
	DeviceCount   int64    `json:"device_count"`
	AvgDownload   *float64 `json:"avg_download"`
	AvgUpload     *float64 `json:"avg_upload"`
	AvgRSSI       *float64 `json:"avg_rssi"`
	AvgJitter     *float64 `json:"avg_jitter"`
	AvgPacketLoss *float64 `json:"avg_packet_loss"`
}

// SSIDStats groups successful records by network name.
type SSIDStats struct {
	SSID        string   `json:"ssid"`
	TestCount   int64    `json:"test_count"`
	DeviceCount int64    `json:"device_count"`
	APCount     int64    `json:"ap_count"`
	AvgDownload *float64 `json:"avg_download"`
	AvgUpload   *float64 `json:"avg_upload"`
	AvgRSSI     *float64 `json:"avg_rssi"`
}

// BandStats groups successful records by radio band.
type BandStats struct {
	Band        string   `json:"band"`
	Count       int64    `json:"count"`
	AvgDownload *float64 `json:"avg_download"`
}

// VPNDistribution groups successful records by (vpn_status, vpn_name).
type VPNDistribution struct {
	VPNStatus     string   `json:"vpn_status"`
	VPNName       string   `json:"vpn_name"`
	Count         int64    `json:"count"`
	AvgDownload   *float64 `json:"avg_download"`
	AvgUpload     *float64 `json:"avg_upload"`
	AvgLatency    *float64 `json:"avg_latency"`
	AvgJitter     *float64 `json:"avg_jitter"`
	AvgPacketLoss *float64 `json:"avg_packet_loss"`
}

// VPN comparison modes.
const (
	ModeVPNOn  = "VPN On"
	ModeVPNOff = "VPN Off"
)

// VPNComparison is one side of the connected versus not-connected split.
type VPNComparison struct {
	Mode          string   `json:"mode"`
	TestCount     int64    `json:"test_count"`
	AvgDownload   *float64 `json:"avg_download"`
	AvgUpload     *float64 `json:"avg_upload"`
	AvgLatency    *float64 `json:"avg_latency"`
	AvgJitter     *float64 `json:"avg_jitter"`
	AvgPacketLoss *float64 `json:"avg_packet_loss"`
}

// BucketStats is one non-empty jitter bucket, identified by its index into
// the edge list passed to JitterBuckets.
type BucketStats struct {
	Index       int
	Count       int64
	AvgDownload *float64
}

// ProblemCriteria selects devices with degraded quality.
type ProblemCriteria struct {
	JitterMs      float64
	PacketLossPct float64
	Limit         int
}

// ProblemDevice is a device whose mean jitter or packet loss is over threshold.
type ProblemDevice struct {
	DeviceID      string    `json:"device_id"`
	Hostname      string    `json:"hostname"`
	TestCount     int64     `json:"test_count"`
	TotalTests    int64     `json:"total_tests"`
	AvgJitter     *float64  `json:"avg_jitter"`
	AvgPacketLoss *float64  `json:"avg_packet_loss"`
	LastTest      time.Time `json:"last_test"`
}

// DeviceHealth summarizes one device across all statuses. Means cover
// successful records only; current context comes from the latest record.
type DeviceHealth struct {
	DeviceID         string     `json:"device_id"`
	Hostname         string     `json:"hostname"`
	OSVersion        string     `json:"os_version"`
	AppVersion       string     `json:"app_version"`
	TotalTests       int64      `json:"total_tests"`
	SuccessfulTests  int64      `json:"successful_tests"`
	AvgDownload      *float64   `json:"avg_download"`
	AvgUpload        *float64   `json:"avg_upload"`
	AvgLatency       *float64   `json:"avg_latency"`
	AvgJitter        *float64   `json:"avg_jitter"`
	AvgPacketLoss    *float64   `json:"avg_packet_loss"`
	FirstSeen        *time.Time `json:"first_seen"`
	LastSeen         *time.Time `json:"last_seen"`
	CurrentVPNStatus string     `json:"current_vpn_status"`
	CurrentVPNName   string     `json:"current_vpn_name"`
	CurrentSSID      string     `json:"current_ssid"`
	CurrentBSSID     string     `json:"current_bssid"`
	CurrentBand      string     `json:"current_band"`
	ClientOutdated   bool       `json:"client_outdated"`
}
