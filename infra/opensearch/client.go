package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/walletpay/infra/config"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Client wraps the OpenSearch client
type Client struct {
	client      *opensearch.Client
	enabled     bool
	indexPrefix string
}

// NewClient creates a new OpenSearch client. No request is sent until the
// first index operation.
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses:     []string{cfg.OpenSearchURL},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchTLSSkip {
		opensearchConfig.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402
		}
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	prefix := strings.Trim(cfg.OpenSearchIndex, "-")
	if prefix == "" {
		prefix = "walletpay"
	}

	return &Client{
		client:      client,
		enabled:     cfg.EnableOpenSearch,
		indexPrefix: prefix,
	}, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// AttemptIndex is the index payment attempts are written to
func (c *Client) AttemptIndex() string {
	return c.indexPrefix + "-attempts"
}

// SystemLogIndex is the index system log entries are written to
func (c *Client) SystemLogIndex() string {
	return c.indexPrefix + "-system-logs"
}

// EnsureIndices creates the attempt index with its mapping when missing.
// The system log index is left to dynamic mapping.
func (c *Client) EnsureIndices(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	index := c.AttemptIndex()
	exists, err := c.indexExists(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", index, err)
	}
	if exists {
		return nil
	}

	if err := c.createIndex(ctx, index, attemptMapping); err != nil {
		return err
	}
	logger.Info("Created OpenSearch index", logger.LogContext{Fields: map[string]any{"index": index}})
	return nil
}

func (c *Client) indexExists(ctx context.Context, indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
}

func (c *Client) createIndex(ctx context.Context, indexName, mapping string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", indexName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}

	return nil
}

const attemptMapping = `{
	"mappings": {
		"properties": {
			"id": {"type": "keyword"},
			"timestamp": {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"request_id": {"type": "keyword"},
			"gateway": {"type": "keyword"},
			"environment": {"type": "keyword"},
			"merchant_id": {"type": "keyword"},
			"state": {"type": "keyword"},
			"error_kind": {"type": "keyword"},
			"reason": {"type": "text"},
			"token_fingerprint": {"type": "keyword"},
			"token_type": {"type": "keyword"},
			"card_network": {"type": "keyword"},
			"amount": {"type": "scaled_float", "scaling_factor": 100},
			"currency": {"type": "keyword"},
			"gateway_reference": {"type": "keyword"},
			"replayed": {"type": "boolean"},
			"duration_ms": {"type": "long"}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`
