// Repositories - single point of access to all store repositories.
package store

// Repositories holds all repository instances for a single database
// client.
type Repositories struct {
	Agents       *AgentRepository
	Capabilities *CapabilityRepository
	Interactions *InteractionRepository
	Messages     *MessageRepository
	Nonces       *NonceRepository
	Batches      *BatchRepository
	Proofs       *ProofRepository
}

// NewRepositories creates all repositories bound to the given client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Agents:       NewAgentRepository(client),
		Capabilities: NewCapabilityRepository(client),
		Interactions: NewInteractionRepository(client),
		Messages:     NewMessageRepository(client),
		Nonces:       NewNonceRepository(client),
		Batches:      NewBatchRepository(client),
		Proofs:       NewProofRepository(client),
	}
}
