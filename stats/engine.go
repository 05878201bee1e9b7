// Package stats builds the dashboard aggregate views from the record store.
//
// Each view is computed from a single storage snapshot and rounded for
// presentation here, never in storage. Concurrent requests for the same view
// share one computation.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"golang.org/x/sync/singleflight"

	"github.com/hyperkishore/home-internet/storage"
)

// Options tune the engine. Zero values take the defaults below.
type Options struct {
	HourlyWindow         time.Duration
	ProblemJitterMs      float64
	ProblemPacketLossPct float64
	ProblemDeviceLimit   int
	RecentTests          int
	// MinAppVersion flags devices running an older client. Empty disables the check.
	MinAppVersion string
	// Now overrides the clock for the hourly window.
	Now func() time.Time
}

// Defaults for Options.
const (
	DefaultHourlyWindow         = 24 * time.Hour
	DefaultProblemJitterMs      = 20
	DefaultProblemPacketLossPct = 1
	DefaultProblemDeviceLimit   = 20
	DefaultRecentTests          = 20
)

// OverallView is the fleet summary, per-device table and hourly trend.
type OverallView struct {
	Overall   storage.OverallStats  `json:"overall"`
	PerDevice []storage.DeviceStats `json:"perDevice"`
	Hourly    []storage.HourlyStats `json:"hourly"`
}

// WifiView groups results by access point, network and band.
type WifiView struct {
	ByAccessPoint    []storage.AccessPointStats `json:"byAccessPoint"`
	BySSID           []storage.SSIDStats        `json:"bySSID"`
	BandDistribution []storage.BandStats        `json:"bandDistribution"`
}

// VPNView compares results by VPN state.
type VPNView struct {
	Distribution []storage.VPNDistribution `json:"distribution"`
	Comparison   []storage.VPNComparison   `json:"comparison"`
}

// JitterView is the jitter histogram plus the devices that need attention.
type JitterView struct {
	Distribution   []JitterBucket          `json:"distribution"`
	ProblemDevices []storage.ProblemDevice `json:"problemDevices"`
	Quantiles      JitterQuantiles         `json:"quantiles"`
}

// DeviceHealthView describes one device and its latest tests.
type DeviceHealthView struct {
	Health      storage.DeviceHealth `json:"health"`
	RecentTests []*storage.Record    `json:"recentTests"`
}

// Engine computes aggregate views. It is safe for concurrent use.
//
// A caller that arrives while the same view is already being computed
// receives that result, so it may not include a record the caller appended
// just before asking. Each view still reflects one consistent snapshot.
type Engine struct {
	store      storage.Store
	opts       Options
	minVersion *semver.Version
	group      singleflight.Group
}

// NewEngine returns an engine reading from store.
func NewEngine(store storage.Store, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("stats: store required")
	}
	if opts.HourlyWindow <= 0 {
		opts.HourlyWindow = DefaultHourlyWindow
	}
	if opts.ProblemJitterMs <= 0 {
		opts.ProblemJitterMs = DefaultProblemJitterMs
	}
	if opts.ProblemPacketLossPct <= 0 {
		opts.ProblemPacketLossPct = DefaultProblemPacketLossPct
	}
	if opts.ProblemDeviceLimit <= 0 {
		opts.ProblemDeviceLimit = DefaultProblemDeviceLimit
	}
	if opts.RecentTests <= 0 {
		opts.RecentTests = DefaultRecentTests
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{store: store, opts: opts}
	if opts.MinAppVersion != "" {
		e.minVersion = parseVersion(opts.MinAppVersion)
		if e.minVersion == nil {
			return nil, fmt.Errorf("stats: invalid min app version %q", opts.MinAppVersion)
		}
	}
	return e, nil
}

// shared runs compute once for all concurrent callers of key. The
// computation is detached from any single caller's cancellation; each caller
// still stops waiting when its own ctx ends.
func (e *Engine) shared(ctx context.Context, key string, compute func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := e.group.DoChan(key, func() (interface{}, error) {
		return compute(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Overall returns the fleet summary, per-device stats and the hourly trend.
func (e *Engine) Overall(ctx context.Context) (*OverallView, error) {
	v, err := e.shared(ctx, "overall", func(ctx context.Context) (interface{}, error) {
		view := &OverallView{}
		since := e.opts.Now().Add(-e.opts.HourlyWindow)
		err := e.store.Snapshot(ctx, func(snap *storage.Snapshot) error {
			var err error
			if view.Overall, err = snap.Overall(ctx); err != nil {
				return err
			}
			if view.PerDevice, err = snap.PerDevice(ctx); err != nil {
				return err
			}
			view.Hourly, err = snap.Hourly(ctx, since)
			return err
		})
		if err != nil {
			return nil, err
		}
		roundOverall(&view.Overall)
		for i := range view.PerDevice {
			roundDevice(&view.PerDevice[i])
		}
		for i := range view.Hourly {
			roundHourly(&view.Hourly[i])
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*OverallView), nil
}

// Wifi returns access point, SSID and band groupings.
func (e *Engine) Wifi(ctx context.Context) (*WifiView, error) {
	v, err := e.shared(ctx, "wifi", func(ctx context.Context) (interface{}, error) {
		view := &WifiView{}
		err := e.store.Snapshot(ctx, func(snap *storage.Snapshot) error {
			var err error
			if view.ByAccessPoint, err = snap.AccessPoints(ctx); err != nil {
				return err
			}
			if view.BySSID, err = snap.SSIDs(ctx); err != nil {
				return err
			}
			view.BandDistribution, err = snap.Bands(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		for i := range view.ByAccessPoint {
			roundAccessPoint(&view.ByAccessPoint[i])
		}
		for i := range view.BySSID {
			roundSSID(&view.BySSID[i])
		}
		for i := range view.BandDistribution {
			view.BandDistribution[i].AvgDownload = r2(view.BandDistribution[i].AvgDownload)
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*WifiView), nil
}

// VPN returns the VPN distribution and the on/off comparison.
func (e *Engine) VPN(ctx context.Context) (*VPNView, error) {
	v, err := e.shared(ctx, "vpn", func(ctx context.Context) (interface{}, error) {
		view := &VPNView{}
		err := e.store.Snapshot(ctx, func(snap *storage.Snapshot) error {
			var err error
			if view.Distribution, err = snap.VPNDistribution(ctx); err != nil {
				return err
			}
			view.Comparison, err = snap.VPNComparison(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		for i := range view.Distribution {
			roundVPNDistribution(&view.Distribution[i])
		}
		for i := range view.Comparison {
			roundVPNComparison(&view.Comparison[i])
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*VPNView), nil
}

// Jitter returns the jitter histogram, problem devices and fleet quantiles.
func (e *Engine) Jitter(ctx context.Context) (*JitterView, error) {
	v, err := e.shared(ctx, "jitter", func(ctx context.Context) (interface{}, error) {
		sketch, err := newQuantileSketch()
		if err != nil {
			return nil, err
		}
		view := &JitterView{Distribution: []JitterBucket{}}
		criteria := storage.ProblemCriteria{
			JitterMs:      e.opts.ProblemJitterMs,
			PacketLossPct: e.opts.ProblemPacketLossPct,
			Limit:         e.opts.ProblemDeviceLimit,
		}
		err = e.store.Snapshot(ctx, func(snap *storage.Snapshot) error {
			buckets, err := snap.JitterBuckets(ctx, JitterEdges)
			if err != nil {
				return err
			}
			for _, b := range buckets {
				if b.Index < 0 || b.Index >= len(JitterLabels) {
					continue
				}
				view.Distribution = append(view.Distribution, JitterBucket{
					Bucket:      JitterLabels[b.Index],
					Count:       b.Count,
					AvgDownload: r2(b.AvgDownload),
				})
			}
			if view.ProblemDevices, err = snap.ProblemDevices(ctx, criteria); err != nil {
				return err
			}
			return snap.EachSuccessfulJitter(ctx, sketch.Add)
		})
		if err != nil {
			return nil, err
		}
		for i := range view.ProblemDevices {
			roundProblem(&view.ProblemDevices[i])
		}
		view.Quantiles = sketch.Result()
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*JitterView), nil
}

// DeviceHealth returns deviceID's health summary and most recent tests. An
// unknown device yields zero counts and no tests, not an error.
func (e *Engine) DeviceHealth(ctx context.Context, deviceID string) (*DeviceHealthView, error) {
	v, err := e.shared(ctx, "health\x00"+deviceID, func(ctx context.Context) (interface{}, error) {
		view := &DeviceHealthView{}
		err := e.store.Snapshot(ctx, func(snap *storage.Snapshot) error {
			var err error
			if view.Health, err = snap.DeviceHealth(ctx, deviceID); err != nil {
				return err
			}
			view.RecentTests, err = snap.RecentByDevice(ctx, deviceID, e.opts.RecentTests)
			return err
		})
		if err != nil {
			return nil, err
		}
		roundHealth(&view.Health)
		view.Health.ClientOutdated = e.clientOutdated(view.Health.AppVersion)
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DeviceHealthView), nil
}

// clientOutdated reports whether appVersion is a valid version below the minimum.
func (e *Engine) clientOutdated(appVersion string) bool {
	if e.minVersion == nil {
		return false
	}
	v := parseVersion(appVersion)
	return v != nil && v.LessThan(e.minVersion)
}

func parseVersion(raw string) *semver.Version {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "v"))
	if trimmed == "" {
		return nil
	}
	ver, err := semver.NewVersion(trimmed)
	if err != nil {
		return nil
	}
	return ver
}
