package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDecisionMaker consults an external decision service: the cycle
// context is POSTed as JSON and the response body is one tool call.
type HTTPDecisionMaker struct {
	endpoint string
	client   *http.Client
}

func NewHTTPDecisionMaker(endpoint string) *HTTPDecisionMaker {
	return &HTTPDecisionMaker{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 60 * time.Second, // outer bound; the cycle ctx is tighter
		},
	}
}

func (m *HTTPDecisionMaker) Decide(ctx context.Context, dc DecisionContext) (ToolCall, error) {
	body, err := json.Marshal(dc)
	if err != nil {
		return ToolCall{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return ToolCall{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return ToolCall{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ToolCall{}, fmt.Errorf("decision service: %s: %s", resp.Status, string(b))
	}

	var call ToolCall
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&call); err != nil {
		return ToolCall{}, fmt.Errorf("decode tool call: %w", err)
	}
	return call, nil
}

var _ DecisionMaker = (*HTTPDecisionMaker)(nil)
