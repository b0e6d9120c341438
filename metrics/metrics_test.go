package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMustRegisterSucceedsOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("peer-a")
	m.MustRegister(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestPendingAckDepthReflectsSetValue(t *testing.T) {
	m := New("peer-b")
	m.PendingAckDepth.Set(3)

	var out dto.Metric
	if err := m.PendingAckDepth.Write(&out); err != nil {
		t.Fatal(err)
	}
	if out.GetGauge().GetValue() != 3 {
		t.Fatalf("expected gauge value 3, got %v", out.GetGauge().GetValue())
	}
}

func TestAcksSentByTriggerLabelsIndependently(t *testing.T) {
	m := New("peer-c")
	m.AcksSentByTrigger.WithLabelValues("byte_threshold").Inc()
	m.AcksSentByTrigger.WithLabelValues("byte_threshold").Inc()
	m.AcksSentByTrigger.WithLabelValues("timer").Inc()

	var byteCounter dto.Metric
	if err := m.AcksSentByTrigger.WithLabelValues("byte_threshold").Write(&byteCounter); err != nil {
		t.Fatal(err)
	}
	if byteCounter.GetCounter().GetValue() != 2 {
		t.Fatalf("expected 2, got %v", byteCounter.GetCounter().GetValue())
	}
}
