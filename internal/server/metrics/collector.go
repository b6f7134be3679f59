// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

// Package metrics exports registry activity in Prometheus format.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tchandler/eventworks/pkg/eventworks"
)

const namespace = "eventworks"

// StatsSource provides point-in-time registry shape.
type StatsSource interface {
	Stats() []eventworks.ChannelStats
}

// Collector implements eventworks.Observer on top of Prometheus instruments
// and reports the registry shape as gauges at scrape time.
type Collector struct {
	registry *prometheus.Registry

	subscribed   *prometheus.CounterVec
	unsubscribed *prometheus.CounterVec
	published    *prometheus.CounterVec
	fanout       *prometheus.HistogramVec
	delivered    *prometheus.HistogramVec

	mu     sync.RWMutex
	source StatsSource

	channels      *prometheus.Desc
	topics        *prometheus.Desc
	subscriptions *prometheus.Desc
}

var _ eventworks.Observer = (*Collector)(nil)

// NewCollector builds a collector registered on its own Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		subscribed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_added_total",
			Help:      "Subscriptions registered, by channel and topic.",
		}, []string{"channel", "topic"}),
		unsubscribed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_removed_total",
			Help:      "Subscriptions removed, by channel and topic.",
		}, []string{"channel", "topic"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published, by channel and topic.",
		}, []string{"channel", "topic"}),
		fanout: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_fanout",
			Help:      "Number of subscriptions an event was dispatched to.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"channel"}),
		delivered: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "callback_duration_seconds",
			Help:      "Time spent inside subscriber callbacks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		channels: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "channels"),
			"Number of channels held by the registry.",
			nil,
			nil,
		),
		topics: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "topics"),
			"Number of topics per channel.",
			[]string{"channel"},
			nil,
		),
		subscriptions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "subscriptions"),
			"Live subscriptions per channel and topic.",
			[]string{"channel", "topic"},
			nil,
		),
	}

	c.registry.MustRegister(c.subscribed, c.unsubscribed, c.published, c.fanout, c.delivered, c)
	return c
}

// Registry returns the Prometheus registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Watch attaches the registry whose shape is reported as gauges.
func (c *Collector) Watch(source StatsSource) {
	c.mu.Lock()
	c.source = source
	c.mu.Unlock()
}

func (c *Collector) Subscribed(channel, topic string) {
	c.subscribed.WithLabelValues(channel, topic).Inc()
}

func (c *Collector) Unsubscribed(channel, topic string, count int) {
	c.unsubscribed.WithLabelValues(channel, topic).Add(float64(count))
}

func (c *Collector) Published(channel, topic string, fanout int) {
	c.published.WithLabelValues(channel, topic).Inc()
	c.fanout.WithLabelValues(channel).Observe(float64(fanout))
}

func (c *Collector) Delivered(channel, _ string, elapsed time.Duration) {
	c.delivered.WithLabelValues(channel).Observe(elapsed.Seconds())
}

// Describe implements prometheus.Collector for the shape gauges.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.channels
	ch <- c.topics
	ch <- c.subscriptions
}

// Collect implements prometheus.Collector for the shape gauges.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	source := c.source
	c.mu.RUnlock()
	if source == nil {
		return
	}

	stats := source.Stats()
	ch <- prometheus.MustNewConstMetric(c.channels, prometheus.GaugeValue, float64(len(stats)))
	for _, channel := range stats {
		ch <- prometheus.MustNewConstMetric(c.topics, prometheus.GaugeValue, float64(len(channel.Topics)), channel.Name)
		for _, topic := range channel.Topics {
			ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(topic.Subscriptions), channel.Name, topic.Name)
		}
	}
}
