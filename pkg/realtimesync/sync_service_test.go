package realtimesync

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aeep-network/aeep/pkg/store"
)

func TestSyncService_DisabledClientDoesNotBlock(t *testing.T) {
	client, err := NewClient(context.Background(), &ClientConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	s := NewSyncService(&SyncServiceConfig{
		Client: client,
		Logger: log.New(log.Writer(), "[test] ", 0),
	})
	defer s.Stop()

	s.NotifyAgentUpdated(&store.Agent{DID: "did:aeep:example", Status: store.DIDStatusActive})
	s.NotifyInteractionUpdated(&store.Interaction{ID: uuid.New(), Status: store.InteractionPending})
}

func TestSyncService_NilUpdatesAreIgnored(t *testing.T) {
	s := NewSyncService(&SyncServiceConfig{})
	defer s.Stop()

	s.NotifyAgentUpdated(nil)
	s.NotifyInteractionUpdated(nil)
}

func TestSyncService_StopWaitsForQueueDrain(t *testing.T) {
	s := NewSyncService(&SyncServiceConfig{Workers: 1, Timeout: time.Second})
	done := make(chan struct{})
	s.jobs <- func(ctx context.Context) { close(done) }
	s.Stop()
	select {
	case <-done:
	default:
		t.Fatal("expected queued job to run before Stop returned")
	}
}
