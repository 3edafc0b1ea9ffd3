package llm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"skald/internal/agent/ports"
	"skald/internal/logging"
)

// ProviderConfig is one upstream endpoint able to serve a set of models.
type ProviderConfig struct {
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// RegistryConfig maps model ids onto providers. Models not present in the
// table go to the default provider.
type RegistryConfig struct {
	Providers       map[string]ProviderConfig
	Models          map[string]string // model id -> provider name
	DefaultProvider string
	DefaultModel    string
	Logger          logging.Logger
}

// Registry hands out a ModelProvider per model id. Clients are built lazily
// and cached; the table is fixed at startup.
type Registry struct {
	cfg     RegistryConfig
	logger  logging.Logger
	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry validates the table and builds the registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("llm registry: no providers configured")
	}
	if cfg.DefaultProvider == "" {
		return nil, fmt.Errorf("llm registry: default provider is required")
	}
	if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
		return nil, fmt.Errorf("llm registry: default provider %q not configured", cfg.DefaultProvider)
	}
	for model, provider := range cfg.Models {
		if _, ok := cfg.Providers[provider]; !ok {
			return nil, fmt.Errorf("llm registry: model %q maps to unknown provider %q", model, provider)
		}
	}
	return &Registry{
		cfg:     cfg,
		logger:  logging.OrNop(cfg.Logger),
		clients: make(map[string]*Client),
	}, nil
}

// ProviderFor resolves a model id to a streaming client. An empty model id
// falls back to the configured default model.
func (r *Registry) ProviderFor(modelID string) (ports.ModelProvider, string, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		modelID = r.cfg.DefaultModel
	}
	if modelID == "" {
		return nil, "", fmt.Errorf("llm registry: no model requested and no default model configured")
	}

	providerName, ok := r.cfg.Models[modelID]
	if !ok {
		providerName = r.cfg.DefaultProvider
		r.logger.Debug("model %s not in table, using default provider %s", modelID, providerName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[modelID]; ok {
		return client, providerName, nil
	}

	providerCfg := r.cfg.Providers[providerName]
	client, err := NewClient(ClientConfig{
		BaseURL:     providerCfg.BaseURL,
		APIKey:      providerCfg.APIKey,
		Model:       modelID,
		Temperature: providerCfg.Temperature,
		MaxTokens:   providerCfg.MaxTokens,
		Timeout:     providerCfg.Timeout,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, "", err
	}
	r.clients[modelID] = client
	return client, providerName, nil
}
