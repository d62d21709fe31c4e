package debugstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat_sync_debug"

// Collector export the store's metrics snapshot as prometheus gauges
type Collector struct {
	store *Store

	activeConnections *prometheus.Desc
	joinedRooms       *prometheus.Desc
	messages          *prometheus.Desc
	disconnects       *prometheus.Desc
	buffered          *prometheus.Desc
	errors            *prometheus.Desc
}

// NewCollector create Collector
func NewCollector(store *Store) *Collector {
	return &Collector{
		store:             store,
		activeConnections: prometheus.NewDesc(namespace+"_active_connections", "Sockets currently connected.", nil, nil),
		joinedRooms:       prometheus.NewDesc(namespace+"_joined_rooms", "Rooms currently joined.", nil, nil),
		messages:          prometheus.NewDesc(namespace+"_messages_in_window", "Messages sent or received in the trailing window.", nil, nil),
		disconnects:       prometheus.NewDesc(namespace+"_disconnects_in_window", "Disconnects in the trailing window.", nil, nil),
		buffered:          prometheus.NewDesc(namespace+"_events_buffered", "Events held in the ring buffer.", nil, nil),
		errors:            prometheus.NewDesc(namespace+"_error_codes", "Occurrences of the most frequent error codes.", []string{"code"}, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeConnections
	ch <- c.joinedRooms
	ch <- c.messages
	ch <- c.disconnects
	ch <- c.buffered
	ch <- c.errors
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.store.GetMetrics()
	ch <- prometheus.MustNewConstMetric(c.activeConnections, prometheus.GaugeValue, float64(m.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(c.joinedRooms, prometheus.GaugeValue, float64(m.JoinedRooms))
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.GaugeValue, float64(m.MessagesInWindow))
	ch <- prometheus.MustNewConstMetric(c.disconnects, prometheus.GaugeValue, float64(m.DisconnectsInWindow))
	ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(m.EventCount))
	for _, e := range m.TopErrors {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, float64(e.Count), e.Code)
	}
}
