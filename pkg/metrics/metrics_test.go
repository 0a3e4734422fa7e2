package metrics

import "testing"

func TestNew_RegistersWithoutPanic(t *testing.T) {
	m := New()
	m.EnvelopesAuthenticated.WithLabelValues("request").Inc()
	m.AuthRejections.WithLabelValues("NONCE_REUSED").Inc()
	m.InteractionTransitions.WithLabelValues("offered").Inc()
	m.BatchBufferSize.Set(3)
	m.PushStreamsOpen.Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one registered metric family")
	}
}
