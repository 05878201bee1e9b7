package stats

import (
	"math"

	"github.com/hyperkishore/home-internet/storage"
)

// round returns v rounded half away from zero to places decimals; nil stays nil.
func round(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	p := math.Pow(10, float64(places))
	r := math.Round(*v*p) / p
	if r == 0 {
		r = 0 // drop negative zero
	}
	return &r
}

func r2(v *float64) *float64 { return round(v, 2) }

func roundOverall(o *storage.OverallStats) {
	o.AvgDownload, o.AvgUpload, o.AvgLatency = r2(o.AvgDownload), r2(o.AvgUpload), r2(o.AvgLatency)
	o.AvgJitter, o.AvgPacketLoss = r2(o.AvgJitter), r2(o.AvgPacketLoss)
	o.MinDownload, o.MaxDownload = r2(o.MinDownload), r2(o.MaxDownload)
}

func roundDevice(d *storage.DeviceStats) {
	d.AvgDownload, d.AvgUpload, d.AvgLatency = r2(d.AvgDownload), r2(d.AvgUpload), r2(d.AvgLatency)
	d.AvgJitter, d.AvgPacketLoss = r2(d.AvgJitter), r2(d.AvgPacketLoss)
}

func roundHourly(h *storage.HourlyStats) {
	h.AvgDownload, h.AvgUpload, h.AvgJitter = r2(h.AvgDownload), r2(h.AvgUpload), r2(h.AvgJitter)
}

func roundAccessPoint(a *storage.AccessPointStats) {
	a.AvgDownload, a.AvgUpload = r2(a.AvgDownload), r2(a.AvgUpload)
	a.AvgRSSI = round(a.AvgRSSI, 0)
	a.AvgJitter, a.AvgPacketLoss = r2(a.AvgJitter), r2(a.AvgPacketLoss)
}

func roundSSID(s *storage.SSIDStats) {
	s.AvgDownload, s.AvgUpload = r2(s.AvgDownload), r2(s.AvgUpload)
	s.AvgRSSI = round(s.AvgRSSI, 0)
}

func roundVPNDistribution(v *storage.VPNDistribution) {
	v.AvgDownload, v.AvgUpload, v.AvgLatency = r2(v.AvgDownload), r2(v.AvgUpload), r2(v.AvgLatency)
	v.AvgJitter, v.AvgPacketLoss = r2(v.AvgJitter), r2(v.AvgPacketLoss)
}

func roundVPNComparison(c *storage.VPNComparison) {
	c.AvgDownload, c.AvgUpload, c.AvgLatency = r2(c.AvgDownload), r2(c.AvgUpload), r2(c.AvgLatency)
	c.AvgJitter, c.AvgPacketLoss = r2(c.AvgJitter), r2(c.AvgPacketLoss)
}

func roundProblem(p *storage.ProblemDevice) {
	p.AvgJitter, p.AvgPacketLoss = r2(p.AvgJitter), r2(p.AvgPacketLoss)
}

func roundHealth(h *storage.DeviceHealth) {
	h.AvgDownload, h.AvgUpload, h.AvgLatency = r2(h.AvgDownload), r2(h.AvgUpload), r2(h.AvgLatency)
	h.AvgJitter, h.AvgPacketLoss = r2(h.AvgJitter), r2(h.AvgPacketLoss)
}
