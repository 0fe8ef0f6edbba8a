// Package prxwmetrics exports receive window statistics to Prometheus.
package prxwmetrics

import (
	"github.com/gordian-engine/pgm/prxw"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsProvider is satisfied by [*prxw.Window].
// Stats must be safe to call from the scraping goroutine.
type StatsProvider interface {
	Stats() prxw.Stats
}

// Collector is a [prometheus.Collector] over one receive window.
type Collector struct {
	p StatsProvider

	capacityDesc *prometheus.Desc
	lengthDesc   *prometheus.Desc
	sizeDesc     *prometheus.Desc
	stateDesc    *prometheus.Desc
	queueDesc    *prometheus.Desc

	lossesDesc   *prometheus.Desc
	bytesDesc    *prometheus.Desc
	messagesDesc *prometheus.Desc
}

// NewCollector returns a Collector reading from p.
// The const labels typically identify the sender,
// for example by its transport session ID.
func NewCollector(namespace string, p StatsProvider, constLabels prometheus.Labels) *Collector {
	const subsystem = "rxw"
	fq := func(name string) string {
		return prometheus.BuildFQName(namespace, subsystem, name)
	}

	return &Collector{
		p: p,

		capacityDesc: prometheus.NewDesc(
			fq("capacity_sqns"),
			"Receive window capacity in sequence numbers",
			nil, constLabels,
		),
		lengthDesc: prometheus.NewDesc(
			fq("length_sqns"),
			"Sequence numbers held in the receive window, by region",
			[]string{"region"}, constLabels,
		),
		sizeDesc: prometheus.NewDesc(
			fq("size_bytes"),
			"Payload bytes held in the receive window",
			nil, constLabels,
		),
		stateDesc: prometheus.NewDesc(
			fq("packets"),
			"Tracked packets, by state",
			[]string{"state"}, constLabels,
		),
		queueDesc: prometheus.NewDesc(
			fq("repair_queue_length"),
			"Entries in each repair scheduling queue",
			[]string{"queue"}, constLabels,
		),
		lossesDesc: prometheus.NewDesc(
			fq("losses_total"),
			"Sequence numbers lost since the window was created",
			nil, constLabels,
		),
		bytesDesc: prometheus.NewDesc(
			fq("delivered_bytes_total"),
			"APDU bytes delivered to the application",
			nil, constLabels,
		),
		messagesDesc: prometheus.NewDesc(
			fq("delivered_messages_total"),
			"APDUs delivered to the application",
			nil, constLabels,
		),
	}
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacityDesc
	ch <- c.lengthDesc
	ch <- c.sizeDesc
	ch <- c.stateDesc
	ch <- c.queueDesc
	ch <- c.lossesDesc
	ch <- c.bytesDesc
	ch <- c.messagesDesc
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.p.Stats()

	gauge := func(d *prometheus.Desc, v int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(c.capacityDesc, s.Capacity)

	gauge(c.lengthDesc, s.Length, "window")
	gauge(c.lengthDesc, s.CommitLength, "commit")
	gauge(c.lengthDesc, s.IncomingLength, "incoming")

	gauge(c.sizeDesc, s.Size)

	gauge(c.stateDesc, s.HaveData, prxw.StateHaveData.String())
	gauge(c.stateDesc, s.Parity, prxw.StateHaveParity.String())
	gauge(c.stateDesc, s.Committed, prxw.StateCommitData.String())
	gauge(c.stateDesc, s.Lost, prxw.StateLostData.String())

	gauge(c.queueDesc, s.BackOff, prxw.StateBackOff.String())
	gauge(c.queueDesc, s.WaitNCF, prxw.StateWaitNCF.String())
	gauge(c.queueDesc, s.WaitData, prxw.StateWaitData.String())

	counter(c.lossesDesc, s.CumulativeLosses)
	counter(c.bytesDesc, s.BytesDelivered)
	counter(c.messagesDesc, s.MessagesDelivered)
}
