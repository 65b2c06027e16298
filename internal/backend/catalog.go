package backend

import (
	"context"
	"net/http"
	"strings"
)

// DownloadedModel is one entry of the local model catalog.
type DownloadedModel struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"` // llm, vlm, embeddings
	Publisher    string   `json:"publisher"`
	Arch         string   `json:"arch"`
	Quantization string   `json:"quantization"`
	State        string   `json:"state"` // loaded, not-loaded
	MaxContext   int      `json:"max_context_length"`
	Capabilities []string `json:"capabilities"`
	SizeBytes    *int64   `json:"size_bytes,omitempty"`
}

// TrainedForToolUse reports whether the catalog flags the model as trained
// for tool use.
func (m DownloadedModel) TrainedForToolUse() bool {
	for _, c := range m.Capabilities {
		if strings.EqualFold(c, "tool_use") {
			return true
		}
	}
	return false
}

// IsEmbedding reports whether the model is an embedding model.
func (m DownloadedModel) IsEmbedding() bool {
	return strings.EqualFold(m.Type, "embeddings") || strings.EqualFold(m.Type, "embedding")
}

// Catalog lists every downloaded model, loaded or not, from the
// LM Studio-style REST endpoint GET {root}/api/v0/models.
type Catalog interface {
	DownloadedModels(ctx context.Context) ([]DownloadedModel, error)
}

type CatalogClient struct {
	url     string
	headers map[string]string
	http    *http.Client
}

// NewCatalogClient derives the catalog URL from the OpenAI-compatible base
// URL by dropping a trailing /v1.
func NewCatalogClient(cfg ClientConfig) *CatalogClient {
	return &CatalogClient{
		url:     CatalogURL(cfg.BaseURL),
		headers: cfg.headers(),
		http:    cfg.httpClient(),
	}
}

// CatalogURL returns the downloaded-model endpoint for an API base URL.
func CatalogURL(baseURL string) string {
	root := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	root = strings.TrimSuffix(root, "/v1")
	return root + "/api/v0/models"
}

func (c *CatalogClient) DownloadedModels(ctx context.Context) ([]DownloadedModel, error) {
	var list struct {
		Data []DownloadedModel `json:"data"`
	}
	if err := doJSON(ctx, c.http, c.headers, http.MethodGet, c.url, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

var _ Catalog = (*CatalogClient)(nil)
