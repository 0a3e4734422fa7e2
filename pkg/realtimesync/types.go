package realtimesync

import (
	"time"

	"github.com/aeep-network/aeep/pkg/store"
)

// AgentSnapshot is the subset of an agent's discoverable state mirrored
// to Firestore for dashboards. It intentionally excludes anything a
// dashboard has no business reading, such as the raw DID document.
type AgentSnapshot struct {
	DID              string    `firestore:"did"`
	Status           string    `firestore:"status"`
	Availability     string    `firestore:"availability"`
	DisplayName      string    `firestore:"displayName,omitempty"`
	TrustScore       float64   `firestore:"trustScore"`
	InteractionCount int64     `firestore:"interactionCount"`
	SuccessfulCount  int64     `firestore:"successfulCount"`
	FailedCount      int64     `firestore:"failedCount"`
	DisputeCount     int64     `firestore:"disputeCount"`
	LastSeenAt       time.Time `firestore:"lastSeenAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

// AgentSnapshotFields builds the field map UpsertAgentSnapshot sends to
// Firestore from a store.Agent row.
func AgentSnapshotFields(a *store.Agent) map[string]interface{} {
	return map[string]interface{}{
		"did":              a.DID,
		"status":           string(a.Status),
		"availability":     string(a.Availability),
		"displayName":      a.DisplayName,
		"trustScore":       a.TrustScore,
		"interactionCount": a.InteractionCount,
		"successfulCount":  a.SuccessfulCount,
		"failedCount":      a.FailedCount,
		"disputeCount":     a.DisputeCount,
		"lastSeenAt":       a.LastSeenAt,
		"updatedAt":        a.UpdatedAt,
	}
}

// InteractionSnapshot is the subset of an interaction's negotiation
// state mirrored to Firestore.
type InteractionSnapshot struct {
	InteractionHash string    `firestore:"interactionHash"`
	InitiatorDID    string    `firestore:"initiatorDid"`
	ProviderDID     string    `firestore:"providerDid"`
	Capability      string    `firestore:"capability"`
	Status          string    `firestore:"status"`
	Outcome         string    `firestore:"outcome,omitempty"`
	BatchID         *int64    `firestore:"batchId,omitempty"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

// InteractionSnapshotFields builds the field map UpsertInteractionSnapshot
// sends to Firestore from a store.Interaction row.
func InteractionSnapshotFields(i *store.Interaction) map[string]interface{} {
	fields := map[string]interface{}{
		"interactionHash": i.InteractionHash,
		"initiatorDid":    i.InitiatorDID,
		"providerDid":     i.ProviderDID,
		"capability":      i.Capability,
		"status":          string(i.Status),
		"updatedAt":       i.UpdatedAt,
	}
	if i.Outcome.Valid {
		fields["outcome"] = i.Outcome.String
	}
	if i.BatchID.Valid {
		fields["batchId"] = i.BatchID.Int64
	}
	return fields
}
