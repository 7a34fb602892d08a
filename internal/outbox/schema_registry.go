package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSchemaNotRegistered is returned by lookups when the registry has not seen the schema under
// the subject.
var ErrSchemaNotRegistered = errors.New("schema not registered")

const registryContentType = "application/vnd.schemaregistry.v1+json"

// SchemaRegistryClient talks to the Confluent Schema Registry REST API using JSON schemas.
type SchemaRegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewSchemaRegistryClient returns a client for baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type registryRequest struct {
	SchemaType string `json:"schemaType"`
	Schema     string `json:"schema"`
}

type registryResponse struct {
	ID        int    `json:"id"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// EnsureSchema returns the global id of schema under subject. The exact schema is looked up
// first; unknown schemas are registered as a new version.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	body := registryRequest{SchemaType: "JSON", Schema: schema}

	id, err := c.post(ctx, "subjects/"+url.PathEscape(subject), body)
	if !errors.Is(err, ErrSchemaNotRegistered) {
		return id, err
	}
	return c.post(ctx, "subjects/"+url.PathEscape(subject)+"/versions", body)
}

func (c *SchemaRegistryClient) post(ctx context.Context, path string, body registryRequest) (int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", registryContentType)
	req.Header.Set("Accept", registryContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("schema registry: read body: %w", err)
	}
	var decoded registryResponse
	_ = json.Unmarshal(raw, &decoded)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, ErrSchemaNotRegistered
	case resp.StatusCode >= 300:
		detail := decoded.Message
		if detail == "" {
			detail = string(bytes.TrimSpace(raw))
		}
		return 0, fmt.Errorf("schema registry %s: status %d: %s", path, resp.StatusCode, detail)
	case decoded.ID <= 0:
		return 0, fmt.Errorf("schema registry %s: response carried no schema id", path)
	}
	return decoded.ID, nil
}
