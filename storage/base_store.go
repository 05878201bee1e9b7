package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// recordColumns lists speed_results columns in scan order.
const recordColumns = `id, device_id, user_id, hostname, timestamp_utc, os_version, app_version, timezone,
	interface, local_ip, public_ip,
	ssid, bssid, band, channel, width_mhz, rssi_dbm, noise_dbm, snr_db, tx_rate_mbps,
	latency_ms, jitter_ms, jitter_p50, jitter_p95, packet_loss_pct, download_mbps, upload_mbps,
	vpn_status, vpn_name, status, errors, raw_payload, created_at`

var errMissingDeviceID = errors.New("device_id is required")

// BaseStore provides the Record Store operations shared by SQLite and PostgreSQL.
//
// Queries are written with ? placeholders and converted at runtime when the
// dialect is PostgreSQL.
type BaseStore struct {
	db           *sql.DB
	dialect      Dialect
	dbPath       string
	limits       ListLimits
	queryTimeout time.Duration
}

// NewBaseStore creates a new BaseStore with the given database connection and dialect.
func NewBaseStore(db *sql.DB, dialect Dialect, dbPath string) *BaseStore {
	return &BaseStore{
		db:      db,
		dialect: dialect,
		dbPath:  dbPath,
		limits:  DefaultListLimits(),
	}
}

// Dialect returns the SQL dialect being used.
func (s *BaseStore) Dialect() Dialect {
	return s.dialect
}

// SetLimits replaces the listing caps. Zero fields keep their current value.
func (s *BaseStore) SetLimits(l ListLimits) {
	if l.DefaultList > 0 {
		s.limits.DefaultList = l.DefaultList
	}
	if l.MaxList > 0 {
		s.limits.MaxList = l.MaxList
	}
	if l.DefaultDevice > 0 {
		s.limits.DefaultDevice = l.DefaultDevice
	}
	if l.MaxDevice > 0 {
		s.limits.MaxDevice = l.MaxDevice
	}
}

// Limits returns the listing caps in effect.
func (s *BaseStore) Limits() ListLimits {
	return s.limits
}

// SetQueryTimeout bounds every store call. Zero disables the bound.
func (s *BaseStore) SetQueryTimeout(d time.Duration) {
	s.queryTimeout = d
}

// Close closes the database connection.
func (s *BaseStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// query converts SQLite-style ? placeholders to the dialect's format.
func (s *BaseStore) query(q string) string {
	if s.dialect.Name() == "postgres" {
		return ConvertPlaceholders(q)
	}
	return q
}

func (s *BaseStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// queryContext wraps QueryContext with placeholder conversion.
func (s *BaseStore) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.query(query), args...)
}

// queryRowContext wraps QueryRowContext with placeholder conversion.
func (s *BaseStore) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.query(query), args...)
}

// Ping verifies the database is reachable.
func (s *BaseStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return wrapErr("ping", s.db.PingContext(ctx))
}

// Append inserts rec and returns the id assigned by the database.
// The insert is a single statement, so the row is either fully visible or absent.
func (s *BaseStore) Append(ctx context.Context, rec *Record) (int64, error) {
	if rec == nil || strings.TrimSpace(rec.DeviceID) == "" {
		return 0, &StorageError{Op: "append", Err: errMissingDeviceID}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	createdAt := time.Now().UTC().Truncate(time.Millisecond)
	timestamp := rec.TimestampUTC
	if timestamp.IsZero() {
		timestamp = createdAt
	}
	userID := rec.UserID
	if userID == "" {
		userID = rec.DeviceID
	}

	q := `
		INSERT INTO speed_results (
			device_id, user_id, hostname, timestamp_utc, os_version, app_version, timezone,
			interface, local_ip, public_ip,
			ssid, bssid, band, channel, width_mhz, rssi_dbm, noise_dbm, snr_db, tx_rate_mbps,
			latency_ms, jitter_ms, jitter_p50, jitter_p95, packet_loss_pct, download_mbps, upload_mbps,
			vpn_status, vpn_name, status, errors, raw_payload, created_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?
		) ` + s.dialect.ReturningClause("id")

	var id int64
	err := s.queryRowContext(ctx, q,
		rec.DeviceID, userID, nullString(rec.Hostname), FormatTimestamp(timestamp),
		nullString(rec.OSVersion), nullString(rec.AppVersion), nullString(rec.Timezone),
		nullString(rec.Interface), nullString(rec.LocalIP), nullString(rec.PublicIP),
		nullString(rec.SSID), nullString(rec.BSSID), nullString(rec.Band),
		rec.Channel, rec.WidthMHz, rec.RSSIdBm, rec.NoisedBm, rec.SNRdB, rec.TxRateMbps,
		rec.LatencyMs, rec.JitterMs, rec.JitterP50, rec.JitterP95, rec.PacketLossPct,
		rec.DownloadMbps, rec.UploadMbps,
		defaultString(rec.VPNStatus, VPNDisconnected), defaultString(rec.VPNName, DefaultVPNName),
		defaultString(rec.Status, StatusSuccess), nullString(rec.Errors), nullString(rec.RawPayload),
		FormatTimestamp(createdAt),
	).Scan(&id)
	if err != nil {
		return 0, wrapErr("append", err)
	}

	rec.ID = id
	rec.UserID = userID
	rec.TimestampUTC = timestamp.UTC().Truncate(time.Millisecond)
	rec.CreatedAt = createdAt
	logs.Debug("record appended", "id", id, "device_id", rec.DeviceID)
	return id, nil
}

// Query lists records matching filter, newest first.
func (s *BaseStore) Query(ctx context.Context, filter RecordFilter, page Page) ([]*Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	limit := clamp(page.Limit, s.limits.DefaultList, s.limits.MaxList)
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []interface{}
	)
	if filter.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.SSID != "" {
		where = append(where, "ssid = ?")
		args = append(args, filter.SSID)
	}
	if filter.VPNStatus != "" {
		where = append(where, "vpn_status = ?")
		args = append(args, filter.VPNStatus)
	}

	q := "SELECT " + recordColumns + " FROM speed_results"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp_utc DESC, id DESC " + s.dialect.LimitOffset(limit, offset)

	rows, err := s.queryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("query", err)
	}
	records, err := scanRecords(rows)
	return records, wrapErr("query", err)
}

// GetByDevice lists up to limit records for deviceID, newest first.
func (s *BaseStore) GetByDevice(ctx context.Context, deviceID string, limit int) ([]*Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	limit = clamp(limit, s.limits.DefaultDevice, s.limits.MaxDevice)
	records, err := recentByDevice(ctx, s.db, s.query, deviceID, limit)
	return records, wrapErr("get_by_device", err)
}

// Count returns the total number of stored records.
func (s *BaseStore) Count(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int64
	err := s.queryRowContext(ctx, "SELECT COUNT(*) FROM speed_results").Scan(&n)
	return n, wrapErr("count", err)
}

// Snapshot runs fn inside one read-only transaction so every query it issues
// observes the same committed state.
func (s *BaseStore) Snapshot(ctx context.Context, fn func(*Snapshot) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, s.dialect.SnapshotTxOptions())
	if err != nil {
		return wrapErr("snapshot", err)
	}
	defer tx.Rollback()

	if err := fn(&Snapshot{tx: tx, rewrite: s.query}); err != nil {
		return wrapErr("snapshot", err)
	}
	return wrapErr("snapshot", tx.Commit())
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func recentByDevice(ctx context.Context, q querier, rewrite func(string) string, deviceID string, limit int) ([]*Record, error) {
	rows, err := q.QueryContext(ctx, rewrite(
		"SELECT "+recordColumns+" FROM speed_results WHERE device_id = ? ORDER BY timestamp_utc DESC, id DESC LIMIT ?"),
		deviceID, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                                         Record
		userID, hostname, osVersion, appVersion, tz sql.NullString
		iface, localIP, publicIP, ssid, bssid, band sql.NullString
		errorsText, rawPayload                      sql.NullString
		timestamp, createdAt                        string
	)
	err := row.Scan(
		&rec.ID, &rec.DeviceID, &userID, &hostname, &timestamp, &osVersion, &appVersion, &tz,
		&iface, &localIP, &publicIP,
		&ssid, &bssid, &band, &rec.Channel, &rec.WidthMHz, &rec.RSSIdBm, &rec.NoisedBm, &rec.SNRdB, &rec.TxRateMbps,
		&rec.LatencyMs, &rec.JitterMs, &rec.JitterP50, &rec.JitterP95, &rec.PacketLossPct, &rec.DownloadMbps, &rec.UploadMbps,
		&rec.VPNStatus, &rec.VPNName, &rec.Status, &errorsText, &rawPayload, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.UserID = userID.String
	rec.Hostname = hostname.String
	rec.OSVersion = osVersion.String
	rec.AppVersion = appVersion.String
	rec.Timezone = tz.String
	rec.Interface = iface.String
	rec.LocalIP = localIP.String
	rec.PublicIP = publicIP.String
	rec.SSID = ssid.String
	rec.BSSID = bssid.String
	rec.Band = band.String
	rec.Errors = errorsText.String
	rec.RawPayload = rawPayload.String

	if rec.TimestampUTC, err = ParseTimestamp(timestamp); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = ParseTimestamp(createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
