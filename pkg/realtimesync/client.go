// Firebase Admin SDK client for mirroring agent and interaction state
// into Firestore, for external dashboards. This is a best-effort,
// non-authoritative sink: pkg/store remains the protocol's source of
// truth, and every method here is a no-op when sync is disabled.

package realtimesync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client wraps the Firestore client with AEEP-specific document layout.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	logger    *log.Logger
	enabled   bool
	mu        sync.RWMutex
}

// ClientConfig holds configuration for the Firestore client.
type ClientConfig struct {
	// ProjectID is the Firebase/GCP project ID.
	ProjectID string

	// CredentialsFile is the path to the service account JSON file. If
	// empty, uses GOOGLE_APPLICATION_CREDENTIALS or application default
	// credentials.
	CredentialsFile string

	// Enabled controls whether Firestore operations are actually
	// performed. If false, every Client method is a no-op.
	Enabled bool

	Logger *log.Logger
}

// DefaultConfig returns a ClientConfig populated from environment
// variables.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Enabled:         getEnvBool("FIRESTORE_ENABLED", false),
		Logger:          log.New(os.Stdout, "[RealtimeSync] ", log.LstdFlags),
	}
}

// NewClient dials Firestore if enabled, or returns a no-op client
// otherwise.
func NewClient(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[RealtimeSync] ", log.LstdFlags)
	}

	client := &Client{projectID: cfg.ProjectID, logger: cfg.Logger, enabled: cfg.Enabled}

	if !cfg.Enabled {
		cfg.Logger.Println("Firestore sync is disabled - running in no-op mode")
		return client, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required when Firestore is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	client.app = app
	client.firestore = firestoreClient
	cfg.Logger.Printf("firestore client initialized for project: %s", cfg.ProjectID)
	return client, nil
}

// Close closes the underlying Firestore client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// IsEnabled reports whether sync is active.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// UpsertAgentSnapshot mirrors an agent's discoverable state to
// /agents/{did}.
func (c *Client) UpsertAgentSnapshot(ctx context.Context, did string, fields map[string]interface{}) error {
	if !c.IsEnabled() {
		c.logger.Printf("sync disabled - skipping agent snapshot for %s", did)
		return nil
	}
	if c.firestore == nil {
		return fmt.Errorf("firestore client not initialized")
	}
	_, err := c.firestore.Doc("agents/"+did).Set(ctx, fields, gcpfirestore.MergeAll)
	if err != nil {
		return fmt.Errorf("upsert agent snapshot: %w", err)
	}
	return nil
}

// UpsertInteractionSnapshot mirrors an interaction's lifecycle state to
// /interactions/{id}.
func (c *Client) UpsertInteractionSnapshot(ctx context.Context, interactionID string, fields map[string]interface{}) error {
	if !c.IsEnabled() {
		c.logger.Printf("sync disabled - skipping interaction snapshot for %s", interactionID)
		return nil
	}
	if c.firestore == nil {
		return fmt.Errorf("firestore client not initialized")
	}
	_, err := c.firestore.Doc("interactions/"+interactionID).Set(ctx, fields, gcpfirestore.MergeAll)
	if err != nil {
		return fmt.Errorf("upsert interaction snapshot: %w", err)
	}
	return nil
}

// Health reports whether the Firestore connection, if enabled, is
// reachable.
func (c *Client) Health(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	if c.firestore == nil {
		return fmt.Errorf("firestore client not initialized")
	}
	_, err := c.firestore.Collection("_health_check").Doc("ping").Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1" || val == "yes"
}
