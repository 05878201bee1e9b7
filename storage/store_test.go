package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// sample returns a successful record for device taken offset after baseTime.
func sample(device string, offset time.Duration, download float64) *Record {
	return &Record{
		DeviceID:     device,
		TimestampUTC: baseTime.Add(offset),
		DownloadMbps: download,
		VPNStatus:    VPNDisconnected,
		VPNName:      DefaultVPNName,
		Status:       StatusSuccess,
	}
}

func mustAppend(t *testing.T, s Store, rec *Record) int64 {
	t.Helper()
	id, err := s.Append(context.Background(), rec)
	if err != nil {
		t.Fatalf("Append(%s): %v", rec.DeviceID, err)
	}
	return id
}

func TestAppendAndGetByDevice(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		DeviceID:      "mac-1",
		Hostname:      "office-mbp",
		TimestampUTC:  baseTime,
		SSID:          "Corp",
		BSSID:         "aa:bb:cc:dd:ee:01",
		Band:          "5GHz",
		Channel:       36,
		RSSIdBm:       -55,
		LatencyMs:     12.5,
		JitterMs:      3.25,
		PacketLossPct: 0.5,
		DownloadMbps:  250.75,
		UploadMbps:    40,
		RawPayload:    `{"device_id":"mac-1"}`,
	}
	id := mustAppend(t, s, rec)
	if id <= 0 || rec.ID != id {
		t.Fatalf("expected assigned id, got id=%d rec.ID=%d", id, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	got, err := s.GetByDevice(ctx, "mac-1", 10)
	if err != nil {
		t.Fatalf("GetByDevice: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	r := got[0]
	if r.UserID != "mac-1" {
		t.Errorf("user_id should fall back to device_id, got %q", r.UserID)
	}
	if !r.TimestampUTC.Equal(baseTime) {
		t.Errorf("timestamp mismatch: got=%v", r.TimestampUTC)
	}
	if r.Channel != 36 || r.RSSIdBm != -55 || r.DownloadMbps != 250.75 || r.JitterMs != 3.25 {
		t.Errorf("numeric fields not preserved: %+v", r)
	}
	if r.VPNStatus != VPNDisconnected || r.VPNName != DefaultVPNName || r.Status != StatusSuccess {
		t.Errorf("defaults not applied: vpn=%q/%q status=%q", r.VPNStatus, r.VPNName, r.Status)
	}
	if r.OSVersion != "" || r.Errors != "" {
		t.Errorf("absent optional fields should read back empty: %+v", r)
	}
	if r.RawPayload != `{"device_id":"mac-1"}` {
		t.Errorf("raw payload mismatch: %q", r.RawPayload)
	}
}

func TestAppendRejectsMissingDevice(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Append(context.Background(), &Record{DeviceID: "  "})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "append" {
		t.Errorf("expected append StorageError, got %#v", err)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("count changed: %d", n)
	}
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a1 := sample("A", 0, 10)
	a1.SSID = "Home"
	a2 := sample("A", time.Hour, 20)
	a2.SSID = "Cafe"
	a2.VPNStatus = VPNConnected
	b1 := sample("B", 2*time.Hour, 30)
	b1.SSID = "Home"
	// Same timestamp as b1; the later id must sort first.
	b2 := sample("B", 2*time.Hour, 40)
	b2.SSID = "Home"
	for _, r := range []*Record{a1, a2, b1, b2} {
		mustAppend(t, s, r)
	}

	tests := []struct {
		name   string
		filter RecordFilter
		want   []float64
	}{
		{"all newest first", RecordFilter{}, []float64{40, 30, 20, 10}},
		{"by device", RecordFilter{DeviceID: "A"}, []float64{20, 10}},
		{"by ssid", RecordFilter{SSID: "Home"}, []float64{40, 30, 10}},
		{"by vpn", RecordFilter{VPNStatus: VPNConnected}, []float64{20}},
		{"combined", RecordFilter{DeviceID: "A", SSID: "Home"}, []float64{10}},
		{"no match", RecordFilter{DeviceID: "Z"}, []float64{}},
	}
	for _, tt := range tests {
		got, err := s.Query(ctx, tt.filter, Page{})
		if err != nil {
			t.Fatalf("%s: Query: %v", tt.name, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: expected %d records, got %d", tt.name, len(tt.want), len(got))
		}
		for i, r := range got {
			if r.DownloadMbps != tt.want[i] {
				t.Errorf("%s: record %d download=%v, want %v", tt.name, i, r.DownloadMbps, tt.want[i])
			}
		}
	}

	page, err := s.Query(ctx, RecordFilter{}, Page{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Query page: %v", err)
	}
	if len(page) != 2 || page[0].DownloadMbps != 30 || page[1].DownloadMbps != 20 {
		t.Errorf("unexpected page: %+v", page)
	}

	neg, err := s.Query(ctx, RecordFilter{}, Page{Limit: 1, Offset: -5})
	if err != nil {
		t.Fatalf("Query negative offset: %v", err)
	}
	if len(neg) != 1 || neg[0].DownloadMbps != 40 {
		t.Errorf("negative offset should read from the start, got %+v", neg)
	}
}

func TestListingLimitsAreClamped(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.SetLimits(ListLimits{DefaultList: 3, MaxList: 5, DefaultDevice: 2, MaxDevice: 4})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		mustAppend(t, s, sample("A", time.Duration(i)*time.Minute, float64(i)))
	}

	cases := []struct {
		name string
		run  func() ([]*Record, error)
		want int
	}{
		{"list default", func() ([]*Record, error) { return s.Query(ctx, RecordFilter{}, Page{}) }, 3},
		{"list over max", func() ([]*Record, error) { return s.Query(ctx, RecordFilter{}, Page{Limit: 100}) }, 5},
		{"device default", func() ([]*Record, error) { return s.GetByDevice(ctx, "A", 0) }, 2},
		{"device over max", func() ([]*Record, error) { return s.GetByDevice(ctx, "A", 100) }, 4},
		{"device within", func() ([]*Record, error) { return s.GetByDevice(ctx, "A", 3) }, 3},
	}
	for _, c := range cases {
		got, err := c.run()
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if len(got) != c.want {
			t.Errorf("%s: got %d records, want %d", c.name, len(got), c.want)
		}
	}
}

func TestConcurrentAppendsGetDistinctIDs(t *testing.T) {
	t.Parallel()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "speed.db"), 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	const workers, perWorker = 10, 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make(map[int64]bool)
		errs []error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := s.Append(ctx, sample("dev", time.Duration(w*perWorker+i)*time.Second, 1))
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				} else {
					ids[id] = true
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent appends failed: %v", errs[0])
	}
	if len(ids) != workers*perWorker {
		t.Errorf("expected %d distinct ids, got %d", workers*perWorker, len(ids))
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != workers*perWorker {
		t.Errorf("count = %d, want %d", n, workers*perWorker)
	}
}

func TestStoreSurfacesFaults(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.Close()

	_, err := s.Append(context.Background(), sample("A", 0, 1))
	if !errors.Is(err, ErrStorage) {
		t.Errorf("append on closed store: expected ErrStorage, got %v", err)
	}
	if _, err := s.Count(context.Background()); !errors.Is(err, ErrStorage) {
		t.Errorf("count on closed store: expected ErrStorage, got %v", err)
	}
}

func TestQueryTimeoutIsApplied(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.SetQueryTimeout(time.Nanosecond)

	_, err := s.Count(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
