package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_IncrementCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("messages_sent_total", nil, "Messages sent")

	snapshot := registry.GetAllMetrics()
	counter, exists := snapshot.Counters["messages_sent_total"]
	if assert.True(t, exists) {
		assert.Equal(t, float64(1), counter.Value)
	}

	labels := map[string]string{"channel": "SMS"}
	registry.IncrementCounter("messages_sent_total", labels, "Messages sent")
	registry.IncrementCounter("messages_sent_total", labels, "Messages sent")

	snapshot = registry.GetAllMetrics()
	labeled, exists := snapshot.Counters["messages_sent_total_channel:SMS"]
	if assert.True(t, exists) {
		assert.Equal(t, float64(2), labeled.Value)
		assert.Equal(t, "SMS", labeled.Labels["channel"])
	}

	// Labeled and unlabeled series stay independent
	assert.Equal(t, float64(1), snapshot.Counters["messages_sent_total"].Value)
}

func TestRegistry_AddToCounter(t *testing.T) {
	registry := NewRegistry()

	registry.AddToCounter("messages_polled_total", 5, nil, "Messages polled")
	registry.AddToCounter("messages_polled_total", 3, nil, "Messages polled")

	snapshot := registry.GetAllMetrics()
	counter, exists := snapshot.Counters["messages_polled_total"]
	if assert.True(t, exists) {
		assert.Equal(t, float64(8), counter.Value)
	}
}

func TestRegistry_RecordTimer(t *testing.T) {
	registry := NewRegistry()

	registry.RecordTimer("message_send_duration", 100*time.Millisecond, nil, "Send latency")
	registry.RecordTimer("message_send_duration", 200*time.Millisecond, nil, "Send latency")

	snapshot := registry.GetAllMetrics()
	timer, exists := snapshot.Timers["message_send_duration"]
	if !assert.True(t, exists) {
		return
	}

	assert.Equal(t, int64(2), timer.Count)
	assert.Equal(t, float64(300), timer.Sum)
	assert.Equal(t, float64(100), timer.Min)
	assert.Equal(t, float64(200), timer.Max)
	assert.Equal(t, float64(150), timer.Average)
}

func TestRegistry_SetGauge(t *testing.T) {
	registry := NewRegistry()

	registry.SetGauge("active_conversations", 42, nil, "Active conversations")
	registry.SetGauge("active_conversations", 7, nil, "Active conversations")

	snapshot := registry.GetAllMetrics()
	gauge, exists := snapshot.Gauges["active_conversations"]
	if assert.True(t, exists) {
		assert.Equal(t, float64(7), gauge.Value)
	}
}

func TestMetricKey(t *testing.T) {
	assert.Equal(t, "plain", metricKey("plain", nil))

	labels := map[string]string{
		"status":  "success",
		"channel": "WHATSAPP",
	}
	// Label keys are sorted so the series key is stable
	assert.Equal(t, "sent_channel:WHATSAPP_status:success", metricKey("sent", labels))
}

func TestRegistry_Percentiles(t *testing.T) {
	registry := NewRegistry()

	for i := 1; i <= 100; i++ {
		registry.RecordTimer("poll_duration", time.Duration(i)*time.Millisecond, nil, "Poll latency")
	}

	snapshot := registry.GetAllMetrics()
	timer := snapshot.Timers["poll_duration"]
	if !assert.NotNil(t, timer) {
		return
	}

	assert.Equal(t, int64(100), timer.Count)
	assert.True(t, timer.P95 > 0)
	assert.True(t, timer.P99 >= timer.P95)
}

func TestGlobalRegistry(t *testing.T) {
	IncrementCounter("global_counter", nil, "Global counter")
	AddToCounter("global_add", 2.5, nil, "Global add")
	RecordTimer("global_timer", 10*time.Millisecond, nil, "Global timer")
	SetGauge("global_gauge", 1, nil, "Global gauge")

	snapshot := GetAllMetrics()

	assert.Contains(t, snapshot.Counters, "global_counter")
	assert.Contains(t, snapshot.Counters, "global_add")
	assert.Contains(t, snapshot.Timers, "global_timer")
	assert.Contains(t, snapshot.Gauges, "global_gauge")
	assert.GreaterOrEqual(t, snapshot.UptimeMs, int64(0))
	assert.NotZero(t, snapshot.Timestamp)
}

func TestCopyLabels(t *testing.T) {
	original := map[string]string{"a": "1", "b": "2"}

	copied := copyLabels(original)
	assert.Equal(t, original, copied)

	copied["c"] = "3"
	assert.NotContains(t, original, "c")

	assert.Nil(t, copyLabels(nil))
}
