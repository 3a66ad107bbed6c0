package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/mstgnz/walletpay/payment"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Logger writes payment attempts and system log entries to OpenSearch
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// Record indexes a payment attempt, keyed by its id so retries do not duplicate it
func (l *Logger) Record(ctx context.Context, attempt payment.Attempt) error {
	if !l.client.IsEnabled() {
		return nil
	}

	body, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      l.client.AttemptIndex(),
		DocumentID: attempt.ID,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index attempt: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// RecentAttempts returns the newest attempts, optionally filtered by state
func (l *Logger) RecentAttempts(ctx context.Context, state string, limit int) ([]payment.Attempt, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("opensearch logging is disabled")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := map[string]any{
		"size": limit,
		"sort": []map[string]any{{"timestamp": map[string]any{"order": "desc"}}},
		"query": map[string]any{
			"match_all": map[string]any{},
		},
	}
	if state != "" {
		query["query"] = map[string]any{
			"term": map[string]any{"state": state},
		}
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{l.client.AttemptIndex()},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("failed to search attempts: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source payment.Attempt `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	attempts := make([]payment.Attempt, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		attempts = append(attempts, hit.Source)
	}
	return attempts, nil
}

// LogSystemEvent implements logger.Sink
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal system log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: l.client.SystemLogIndex(),
		Body:  bytes.NewReader([]byte(SanitizeForLog(string(body)))),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index system log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch system log error: %s", res.String())
	}

	return nil
}

var sensitivePatterns = buildSensitivePatterns(
	"token", "paymentToken", "payment_token", "signedMessage", "signature",
	"apiKey", "api_key", "secretKey", "secret_key", "accessToken", "access_token",
	"authorization", "password",
)

func buildSensitivePatterns(fields ...string) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(fields))
	for _, field := range fields {
		patterns[field] = regexp.MustCompile(fmt.Sprintf(`"%s"\s*:\s*"(?:[^"\\]|\\.)*"`, regexp.QuoteMeta(field)))
	}
	return patterns
}

// SanitizeForLog redacts sensitive JSON string values before they are shipped
func SanitizeForLog(data string) string {
	result := data
	for field, re := range sensitivePatterns {
		result = re.ReplaceAllString(result, fmt.Sprintf(`"%s":"***REDACTED***"`, field))
	}
	return result
}
