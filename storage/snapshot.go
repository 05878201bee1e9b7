package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Snapshot issues aggregate queries inside one read transaction. It is only
// valid for the duration of the Store.Snapshot callback.
type Snapshot struct {
	tx      *sql.Tx
	rewrite func(string) string
}

func (s *Snapshot) queryContext(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, s.rewrite(q), args...)
}

func (s *Snapshot) queryRowContext(ctx context.Context, q string, args ...interface{}) *sql.Row {
	return s.tx.QueryRowContext(ctx, s.rewrite(q), args...)
}

// Count returns the number of stored records, all statuses.
func (s *Snapshot) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.queryRowContext(ctx, "SELECT COUNT(*) FROM speed_results").Scan(&n)
	return n, err
}

// Overall summarizes all successful records.
func (s *Snapshot) Overall(ctx context.Context) (OverallStats, error) {
	var (
		out                                  OverallStats
		dl, ul, lat, jit, loss, minDL, maxDL sql.NullFloat64
	)
	err := s.queryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT device_id),
			AVG(download_mbps),
			AVG(upload_mbps),
			AVG(latency_ms),
			AVG(jitter_ms),
			AVG(packet_loss_pct),
			MIN(download_mbps),
			MAX(download_mbps)
		FROM speed_results
		WHERE status = 'success'
	`).Scan(&out.TotalTests, &out.TotalDevices, &dl, &ul, &lat, &jit, &loss, &minDL, &maxDL)
	if err != nil {
		return out, err
	}
	out.AvgDownload = nullFloat(dl)
	out.AvgUpload = nullFloat(ul)
	out.AvgLatency = nullFloat(lat)
	out.AvgJitter = nullFloat(jit)
	out.AvgPacketLoss = nullFloat(loss)
	out.MinDownload = nullFloat(minDL)
	out.MaxDownload = nullFloat(maxDL)
	return out, nil
}

// PerDevice groups successful records by device, most recently tested first.
func (s *Snapshot) PerDevice(ctx context.Context) ([]DeviceStats, error) {
	rows, err := s.queryContext(ctx, `
		WITH ok AS (
			SELECT * FROM speed_results WHERE status = 'success'
		), latest AS (
			SELECT device_id, hostname, os_version, app_version, vpn_status, vpn_name,
				ROW_NUMBER() OVER (PARTITION BY device_id ORDER BY timestamp_utc DESC, id DESC) AS rn
			FROM ok
		), agg AS (
			SELECT
				device_id,
				COUNT(*) AS test_count,
				AVG(download_mbps) AS avg_download,
				AVG(upload_mbps) AS avg_upload,
				AVG(latency_ms) AS avg_latency,
				AVG(jitter_ms) AS avg_jitter,
				AVG(packet_loss_pct) AS avg_packet_loss,
				MAX(timestamp_utc) AS last_test
			FROM ok
			GROUP BY device_id
		)
		SELECT a.device_id, l.hostname, l.os_version, l.app_version, a.test_count,
			a.avg_download, a.avg_upload, a.avg_latency, a.avg_jitter, a.avg_packet_loss,
			a.last_test, l.vpn_status, l.vpn_name
		FROM agg a
		JOIN latest l ON l.device_id = a.device_id AND l.rn = 1
		ORDER BY a.last_test DESC, a.device_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DeviceStats{}
	for rows.Next() {
		var (
			d                               DeviceStats
			hostname, osVersion, appVersion sql.NullString
			dl, ul, lat, jit, loss          sql.NullFloat64
			lastTest                        string
		)
		if err := rows.Scan(&d.DeviceID, &hostname, &osVersion, &appVersion, &d.TestCount,
			&dl, &ul, &lat, &jit, &loss, &lastTest, &d.VPNStatus, &d.VPNName); err != nil {
			return nil, err
		}
		d.Hostname, d.OSVersion, d.AppVersion = hostname.String, osVersion.String, appVersion.String
		d.AvgDownload, d.AvgUpload, d.AvgLatency = nullFloat(dl), nullFloat(ul), nullFloat(lat)
		d.AvgJitter, d.AvgPacketLoss = nullFloat(jit), nullFloat(loss)
		if d.LastTest, err = ParseTimestamp(lastTest); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Hourly buckets successful records newer than since by hour, oldest first.
// Hours without records are absent.
func (s *Snapshot) Hourly(ctx context.Context, since time.Time) ([]HourlyStats, error) {
	rows, err := s.queryContext(ctx, `
		SELECT
			SUBSTR(timestamp_utc, 1, 13) AS hour,
			AVG(download_mbps),
			AVG(upload_mbps),
			AVG(jitter_ms),
			COUNT(*)
		FROM speed_results
		WHERE status = 'success' AND timestamp_utc > ?
		GROUP BY SUBSTR(timestamp_utc, 1, 13)
		ORDER BY 1
	`, FormatTimestamp(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []HourlyStats{}
	for rows.Next() {
		var (
			h          HourlyStats
			prefix     string
			dl, ul, jt sql.NullFloat64
		)
		if err := rows.Scan(&prefix, &dl, &ul, &jt, &h.TestCount); err != nil {
			return nil, err
		}
		h.Hour = hourLabel(prefix)
		h.AvgDownload, h.AvgUpload, h.AvgJitter = nullFloat(dl), nullFloat(ul), nullFloat(jt)
		out = append(out, h)
	}
	return out, rows.Err()
}

// AccessPoints groups successful records by real BSSID, busiest first.
func (s *Snapshot) AccessPoints(ctx context.Context) ([]AccessPointStats, error) {
	rows, err := s.queryContext(ctx, `
		WITH ap AS (
			SELECT * FROM speed_results
			WHERE status = 'success' AND bssid IS NOT NULL AND bssid <> 'none'
		), latest AS (
			SELECT bssid, ssid, band, channel,
				ROW_NUMBER() OVER (PARTITION BY bssid ORDER BY timestamp_utc DESC, id DESC) AS rn
			FROM ap
		), agg AS (
			SELECT
				bssid,
				COUNT(*) AS test_count,
				COUNT(DISTINCT device_id) AS device_count,
				AVG(download_mbps) AS avg_download,
				AVG(upload_mbps) AS avg_upload,
				AVG(CAST(rssi_dbm AS DOUBLE PRECISION)) AS avg_rssi,
				AVG(jitter_ms) AS avg_jitter,
				AVG(packet_loss_pct) AS avg_packet_loss
			FROM ap
			GROUP BY bssid
		)
		SELECT a.bssid, l.ssid, l.band, l.channel, a.test_count, a.device_count,
			a.avg_download, a.avg_upload, a.avg_rssi, a.avg_jitter, a.avg_packet_loss
		FROM agg a
		JOIN latest l ON l.bssid = a.bssid AND l.rn = 1
		ORDER BY a.test_count DESC, a.bssid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AccessPointStats{}
	for rows.Next() {
		var (
			ap                      AccessPointStats
			ssid, band              sql.NullString
			dl, ul, rssi, jit, loss sql.NullFloat64
		)
		if err := rows.Scan(&ap.BSSID, &ssid, &band, &ap.Channel, &ap.TestCount, &ap.DeviceCount,
			&dl, &ul, &rssi, &jit, &loss); err != nil {
			return nil, err
		}
		ap.SSID, ap.Band = ssid.String, band.String
		ap.AvgDownload, ap.AvgUpload, ap.AvgRSSI = nullFloat(dl), nullFloat(ul), nullFloat(rssi)
		ap.AvgJitter, ap.AvgPacketLoss = nullFloat(jit), nullFloat(loss)
		out = append(out, ap)
	}
	return out, rows.Err()
}

// SSIDs groups successful records by network name, busiest first.
func (s *Snapshot) SSIDs(ctx context.Context) ([]SSIDStats, error) {
	rows, err := s.queryContext(ctx, `
		SELECT
			ssid,
			COUNT(*) AS test_count,
			COUNT(DISTINCT device_id),
			COUNT(DISTINCT CASE WHEN bssid <> 'none' THEN bssid END),
			AVG(download_mbps),
			AVG(upload_mbps),
			AVG(CAST(rssi_dbm AS DOUBLE PRECISION))
		FROM speed_results
		WHERE status = 'success' AND ssid IS NOT NULL
		GROUP BY ssid
		ORDER BY test_count DESC, ssid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SSIDStats{}
	for rows.Next() {
		var (
			st           SSIDStats
			dl, ul, rssi sql.NullFloat64
		)
		if err := rows.Scan(&st.SSID, &st.TestCount, &st.DeviceCount, &st.APCount, &dl, &ul, &rssi); err != nil {
			return nil, err
		}
		st.AvgDownload, st.AvgUpload, st.AvgRSSI = nullFloat(dl), nullFloat(ul), nullFloat(rssi)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Bands groups successful records by reported band, in band order.
func (s *Snapshot) Bands(ctx context.Context) ([]BandStats, error) {
	rows, err := s.queryContext(ctx, `
		SELECT band, COUNT(*), AVG(download_mbps)
		FROM speed_results
		WHERE status = 'success' AND band IS NOT NULL AND band <> 'none'
		GROUP BY band
		ORDER BY band
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BandStats{}
	for rows.Next() {
		var (
			b  BandStats
			dl sql.NullFloat64
		)
		if err := rows.Scan(&b.Band, &b.Count, &dl); err != nil {
			return nil, err
		}
		b.AvgDownload = nullFloat(dl)
		out = append(out, b)
	}
	return out, rows.Err()
}

// VPNDistribution groups successful records by VPN status and name, most used first.
func (s *Snapshot) VPNDistribution(ctx context.Context) ([]VPNDistribution, error) {
	rows, err := s.queryContext(ctx, `
		SELECT
			vpn_status,
			vpn_name,
			COUNT(*) AS n,
			AVG(download_mbps),
			AVG(upload_mbps),
			AVG(latency_ms),
			AVG(jitter_ms),
			AVG(packet_loss_pct)
		FROM speed_results
		WHERE status = 'success'
		GROUP BY vpn_status, vpn_name
		ORDER BY n DESC, vpn_status, vpn_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []VPNDistribution{}
	for rows.Next() {
		var (
			v                      VPNDistribution
			dl, ul, lat, jit, loss sql.NullFloat64
		)
		if err := rows.Scan(&v.VPNStatus, &v.VPNName, &v.Count, &dl, &ul, &lat, &jit, &loss); err != nil {
			return nil, err
		}
		v.AvgDownload, v.AvgUpload, v.AvgLatency = nullFloat(dl), nullFloat(ul), nullFloat(lat)
		v.AvgJitter, v.AvgPacketLoss = nullFloat(jit), nullFloat(loss)
		out = append(out, v)
	}
	return out, rows.Err()
}

// VPNComparison splits successful records into connected and everything else.
// "VPN Off" comes first when both are present.
func (s *Snapshot) VPNComparison(ctx context.Context) ([]VPNComparison, error) {
	rows, err := s.queryContext(ctx, `
		SELECT
			mode,
			COUNT(*),
			AVG(download_mbps),
			AVG(upload_mbps),
			AVG(latency_ms),
			AVG(jitter_ms),
			AVG(packet_loss_pct)
		FROM (
			SELECT
				CASE WHEN vpn_status = 'connected' THEN 'VPN On' ELSE 'VPN Off' END AS mode,
				download_mbps, upload_mbps, latency_ms, jitter_ms, packet_loss_pct
			FROM speed_results
			WHERE status = 'success'
		) v
		GROUP BY mode
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var on, off *VPNComparison
	for rows.Next() {
		var (
			c                      VPNComparison
			dl, ul, lat, jit, loss sql.NullFloat64
		)
		if err := rows.Scan(&c.Mode, &c.TestCount, &dl, &ul, &lat, &jit, &loss); err != nil {
			return nil, err
		}
		c.AvgDownload, c.AvgUpload, c.AvgLatency = nullFloat(dl), nullFloat(ul), nullFloat(lat)
		c.AvgJitter, c.AvgPacketLoss = nullFloat(jit), nullFloat(loss)
		if c.Mode == ModeVPNOn {
			on = &c
		} else {
			off = &c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []VPNComparison{}
	if off != nil {
		out = append(out, *off)
	}
	if on != nil {
		out = append(out, *on)
	}
	return out, nil
}

// JitterBuckets counts successful records per jitter bucket. edges must be
// ascending; bucket i holds edges[i-1] <= jitter < edges[i], with the first
// bucket unbounded below and the last (index len(edges)) unbounded above.
// Only non-empty buckets are returned, in index order.
func (s *Snapshot) JitterBuckets(ctx context.Context, edges []float64) ([]BucketStats, error) {
	var cases strings.Builder
	cases.WriteString("CASE")
	for i, edge := range edges {
		cases.WriteString(" WHEN jitter_ms < ")
		cases.WriteString(strconv.FormatFloat(edge, 'f', -1, 64))
		cases.WriteString(" THEN ")
		cases.WriteString(strconv.Itoa(i))
	}
	cases.WriteString(" ELSE ")
	cases.WriteString(strconv.Itoa(len(edges)))
	cases.WriteString(" END")

	rows, err := s.queryContext(ctx, `
		SELECT bucket, COUNT(*), AVG(download_mbps)
		FROM (
			SELECT `+cases.String()+` AS bucket, download_mbps
			FROM speed_results
			WHERE status = 'success'
		) b
		GROUP BY bucket
		ORDER BY bucket
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BucketStats{}
	for rows.Next() {
		var (
			b  BucketStats
			dl sql.NullFloat64
		)
		if err := rows.Scan(&b.Index, &b.Count, &dl); err != nil {
			return nil, err
		}
		b.AvgDownload = nullFloat(dl)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ProblemDevices returns devices whose mean jitter or mean packet loss over
// successful records exceeds the criteria, worst jitter first.
func (s *Snapshot) ProblemDevices(ctx context.Context, c ProblemCriteria) ([]ProblemDevice, error) {
	rows, err := s.queryContext(ctx, `
		WITH d AS (
			SELECT
				device_id,
				COUNT(*) AS total_tests,
				SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END) AS test_count,
				AVG(CASE WHEN status = 'success' THEN jitter_ms END) AS avg_jitter,
				AVG(CASE WHEN status = 'success' THEN packet_loss_pct END) AS avg_packet_loss,
				MAX(CASE WHEN status = 'success' THEN timestamp_utc END) AS last_test
			FROM speed_results
			GROUP BY device_id
		), latest AS (
			SELECT device_id, hostname,
				ROW_NUMBER() OVER (PARTITION BY device_id ORDER BY timestamp_utc DESC, id DESC) AS rn
			FROM speed_results
			WHERE status = 'success'
		)
		SELECT d.device_id, l.hostname, d.test_count, d.total_tests, d.avg_jitter, d.avg_packet_loss, d.last_test
		FROM d
		JOIN latest l ON l.device_id = d.device_id AND l.rn = 1
		WHERE d.avg_jitter > ? OR d.avg_packet_loss > ?
		ORDER BY d.avg_jitter DESC, d.device_id
		LIMIT ?
	`, c.JitterMs, c.PacketLossPct, c.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ProblemDevice{}
	for rows.Next() {
		var (
			p         ProblemDevice
			hostname  sql.NullString
			jit, loss sql.NullFloat64
			lastTest  string
		)
		if err := rows.Scan(&p.DeviceID, &hostname, &p.TestCount, &p.TotalTests, &jit, &loss, &lastTest); err != nil {
			return nil, err
		}
		p.Hostname = hostname.String
		p.AvgJitter, p.AvgPacketLoss = nullFloat(jit), nullFloat(loss)
		if p.LastTest, err = ParseTimestamp(lastTest); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeviceHealth summarizes deviceID. An unknown device yields zero counts,
// nil means and empty context rather than an error.
func (s *Snapshot) DeviceHealth(ctx context.Context, deviceID string) (DeviceHealth, error) {
	h := DeviceHealth{DeviceID: deviceID}

	var (
		successful             sql.NullInt64
		dl, ul, lat, jit, loss sql.NullFloat64
		firstSeen, lastSeen    sql.NullString
	)
	err := s.queryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
			AVG(CASE WHEN status = 'success' THEN download_mbps END),
			AVG(CASE WHEN status = 'success' THEN upload_mbps END),
			AVG(CASE WHEN status = 'success' THEN latency_ms END),
			AVG(CASE WHEN status = 'success' THEN jitter_ms END),
			AVG(CASE WHEN status = 'success' THEN packet_loss_pct END),
			MIN(timestamp_utc),
			MAX(timestamp_utc)
		FROM speed_results
		WHERE device_id = ?
	`, deviceID).Scan(&h.TotalTests, &successful, &dl, &ul, &lat, &jit, &loss, &firstSeen, &lastSeen)
	if err != nil {
		return h, err
	}
	h.SuccessfulTests = successful.Int64
	h.AvgDownload, h.AvgUpload, h.AvgLatency = nullFloat(dl), nullFloat(ul), nullFloat(lat)
	h.AvgJitter, h.AvgPacketLoss = nullFloat(jit), nullFloat(loss)
	if h.FirstSeen, err = nullTimestamp(firstSeen); err != nil {
		return h, err
	}
	if h.LastSeen, err = nullTimestamp(lastSeen); err != nil {
		return h, err
	}
	if h.TotalTests == 0 {
		return h, nil
	}

	var hostname, osVersion, appVersion, ssid, bssid, band sql.NullString
	err = s.queryRowContext(ctx, `
		SELECT hostname, os_version, app_version, vpn_status, vpn_name, ssid, bssid, band
		FROM speed_results
		WHERE device_id = ?
		ORDER BY timestamp_utc DESC, id DESC
		LIMIT 1
	`, deviceID).Scan(&hostname, &osVersion, &appVersion, &h.CurrentVPNStatus, &h.CurrentVPNName, &ssid, &bssid, &band)
	if errors.Is(err, sql.ErrNoRows) {
		return h, nil
	}
	if err != nil {
		return h, err
	}
	h.Hostname, h.OSVersion, h.AppVersion = hostname.String, osVersion.String, appVersion.String
	h.CurrentSSID, h.CurrentBSSID, h.CurrentBand = ssid.String, bssid.String, band.String
	return h, nil
}

// RecentByDevice returns up to limit of deviceID's records, newest first.
func (s *Snapshot) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]*Record, error) {
	return recentByDevice(ctx, s.tx, s.rewrite, deviceID, limit)
}

// EachSuccessfulJitter calls fn with jitter_ms of every successful record.
func (s *Snapshot) EachSuccessfulJitter(ctx context.Context, fn func(float64)) error {
	rows, err := s.queryContext(ctx, "SELECT jitter_ms FROM speed_results WHERE status = 'success'")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return err
		}
		fn(v)
	}
	return rows.Err()
}
