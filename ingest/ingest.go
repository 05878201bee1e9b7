// Package ingest turns a raw speed-test submission into a storage.Record.
//
// Submissions come from many client versions and are loosely typed, so every
// field except device_id is best effort: absent, null, wrongly typed or
// unparseable values take their documented default instead of failing.
package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/hyperkishore/home-internet/storage"
)

// Validation error codes.
const (
	CodeMissingDeviceID = "missing_device_id"
	CodeInvalidPayload  = "invalid_payload"
)

// ValidationError rejects a submission before anything is stored.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// timestampLayouts are tried in order for timestamp_utc. Layouts without a
// zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Normalize validates raw and returns the record to store. now is the
// ingestion time used when timestamp_utc is missing or unreadable.
func Normalize(raw []byte, now time.Time) (*storage.Record, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &ValidationError{Code: CodeInvalidPayload, Message: "body is not valid JSON"}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, &ValidationError{Code: CodeInvalidPayload, Message: "body must be a JSON object"}
	}

	deviceID := identity(doc.Get("device_id"))
	if deviceID == "" {
		return nil, &ValidationError{Code: CodeMissingDeviceID, Field: "device_id", Message: "device_id is required"}
	}

	rec := &storage.Record{
		DeviceID: deviceID,
		UserID:   identity(doc.Get("user_id")),
		Hostname: text(doc.Get("hostname")),

		TimestampUTC: timestamp(doc.Get("timestamp_utc"), now),
		OSVersion:    text(doc.Get("os_version")),
		AppVersion:   text(doc.Get("app_version")),
		Timezone:     text(doc.Get("timezone")),

		Interface: text(doc.Get("interface")),
		LocalIP:   text(doc.Get("local_ip")),
		PublicIP:  text(doc.Get("public_ip")),

		SSID:       text(doc.Get("ssid")),
		BSSID:      text(doc.Get("bssid")),
		Band:       text(doc.Get("band")),
		Channel:    integer(doc.Get("channel")),
		WidthMHz:   integer(doc.Get("width_mhz")),
		RSSIdBm:    integer(doc.Get("rssi_dbm")),
		NoisedBm:   integer(doc.Get("noise_dbm")),
		SNRdB:      integer(doc.Get("snr_db")),
		TxRateMbps: number(doc.Get("tx_rate_mbps")),

		LatencyMs:     number(doc.Get("latency_ms")),
		JitterMs:      number(doc.Get("jitter_ms")),
		JitterP50:     number(doc.Get("jitter_p50")),
		JitterP95:     number(doc.Get("jitter_p95")),
		PacketLossPct: number(doc.Get("packet_loss_pct")),
		DownloadMbps:  number(doc.Get("download_mbps")),
		UploadMbps:    number(doc.Get("upload_mbps")),

		VPNStatus: keyword(doc.Get("vpn_status"), storage.VPNDisconnected),
		VPNName:   orDefault(text(doc.Get("vpn_name")), storage.DefaultVPNName),

		Status: keyword(doc.Get("status"), storage.StatusSuccess),
		Errors: errorsText(doc.Get("errors")),

		RawPayload: string(pretty.Ugly(raw)),
	}
	if rec.UserID == "" {
		rec.UserID = rec.DeviceID
	}
	return rec, nil
}

// identity accepts a non-blank string or a JSON number.
func identity(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

// text reads an optional free-form field. Numbers keep their JSON spelling;
// other types are treated as absent.
func text(r gjson.Result) string {
	return identity(r)
}

// errorsText also accepts a list or object of errors and keeps it as JSON.
func errorsText(r gjson.Result) string {
	if r.Type == gjson.JSON {
		return string(pretty.Ugly([]byte(r.Raw)))
	}
	return text(r)
}

func keyword(r gjson.Result, def string) string {
	return orDefault(strings.ToLower(text(r)), def)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// number reads a float field. Numeric strings are parsed; anything else,
// including NaN and infinities, becomes 0.
func number(r gjson.Result) float64 {
	var v float64
	switch r.Type {
	case gjson.Number:
		v = r.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0
		}
		v = f
	default:
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// integer reads an int field, rounding fractional input to the nearest whole.
func integer(r gjson.Result) int64 {
	v := math.Round(number(r))
	if v >= math.MaxInt64 || v < math.MinInt64 {
		return 0
	}
	return int64(v)
}

// timestamp parses timestamp_utc as text or as Unix seconds or milliseconds.
// Instants whose UTC year needs more than four digits are treated as unreadable.
func timestamp(r gjson.Result, now time.Time) time.Time {
	switch r.Type {
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				if storable(t) {
					return t.UTC()
				}
				break
			}
		}
	case gjson.Number:
		if r.Num > 0 && r.Num < maxEpochNumber {
			var t time.Time
			if r.Num >= 1e12 {
				t = time.UnixMilli(int64(r.Num))
			} else {
				sec, frac := math.Modf(r.Num)
				t = time.Unix(int64(sec), int64(frac*1e9))
			}
			if storable(t) {
				return t.UTC()
			}
		}
	}
	return now.UTC()
}

// maxEpochNumber bounds numeric timestamps before the int64 conversion.
const maxEpochNumber = 1 << 62

// storable reports whether t fits the fixed-width stored timestamp text.
func storable(t time.Time) bool {
	y := t.UTC().Year()
	return y >= 0 && y <= 9999
}
