// Package backend manages LLM clients used to narrate composed readings.
// Clients are cached per (deck, style) pair so concurrent readings against
// the same configuration share one client instead of racing to build
// duplicates.
package backend

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"google.golang.org/genai"

	"tarotvision/internal/logging"
)

// Client narrates a composed reading prompt.
type Client interface {
	// Narrate sends the primary (system) and secondary (user) documents to
	// the model and returns the narrated reading.
	Narrate(ctx context.Context, primary, secondary string) (string, error)

	// Name identifies the client configuration.
	Name() string
}

// Config identifies one client configuration.
type Config struct {
	Deck   string
	Style  string
	APIKey string
	Model  string
}

func (c Config) key() string {
	return c.Deck + "|" + c.Style
}

// Registry caches clients per (deck, style). Construction is deduplicated
// with singleflight so N concurrent requests for the same key build the
// client exactly once.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	group   singleflight.Group

	// newClient builds a client for a config; replaced in tests.
	newClient func(cfg Config) (Client, error)
}

// NewRegistry creates a registry backed by the GenAI client constructor.
func NewRegistry() *Registry {
	return &Registry{
		clients:   make(map[string]Client),
		newClient: newGenAIClient,
	}
}

// Get returns the cached client for the config, constructing it on first use.
func (r *Registry) Get(cfg Config) (Client, error) {
	key := cfg.key()

	r.mu.RLock()
	if c, ok := r.clients[key]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// Re-check under the group: another caller may have stored it
		// between the RLock miss and this flight.
		r.mu.RLock()
		if c, ok := r.clients[key]; ok {
			r.mu.RUnlock()
			return c, nil
		}
		r.mu.RUnlock()

		logging.API("Constructing backend client for deck=%s style=%s", cfg.Deck, cfg.Style)
		c, err := r.newClient(cfg)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.clients[key] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build backend client for %s: %w", key, err)
	}
	return v.(Client), nil
}

// Size returns the number of cached clients.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// genAIClient narrates readings via Google's Gemini API.
type genAIClient struct {
	client *genai.Client
	model  string
	name   string
}

func newGenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("backend API key required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &genAIClient{
		client: client,
		model:  model,
		name:   fmt.Sprintf("genai:%s:%s/%s", model, cfg.Deck, cfg.Style),
	}, nil
}

func (c *genAIClient) Narrate(ctx context.Context, primary, secondary string) (string, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "Narrate")
	defer timer.Stop()

	result, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(secondary),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(primary, genai.RoleUser),
		},
	)
	if err != nil {
		return "", fmt.Errorf("narration failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("empty narration from model")
	}
	return text, nil
}

func (c *genAIClient) Name() string {
	return c.name
}
