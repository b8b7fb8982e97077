// Package huggingface scores text against labels with a hosted zero-shot
// classification model on the Hugging Face inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://api-inference.huggingface.co/models"
	DefaultModel    = "facebook/bart-large-mnli"
)

// Client calls a zero-shot classification model.
type Client struct {
	endpoint string
	model    string
	token    string
	client   *http.Client
}

// New creates a Client. Empty endpoint or model select the defaults.
func New(endpoint, model, token string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	CandidateLabels []string `json:"candidate_labels"`
}

// classic pipeline shape: parallel label and score arrays
type pipelineResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// router shape: list of label/score pairs
type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Score implements category.Scorer.
func (c *Client) Score(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	body, err := json.Marshal(request{Inputs: text, Parameters: parameters{CandidateLabels: labels}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+c.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface returned status %d: %s", resp.StatusCode, truncate(raw, 256))
	}
	return decodeScores(raw)
}

func decodeScores(raw []byte) (map[string]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty response")
	}

	if raw[0] == '[' {
		var pairs []labelScore
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, fmt.Errorf("decode label scores: %w", err)
		}
		scores := make(map[string]float64, len(pairs))
		for _, p := range pairs {
			scores[p.Label] = p.Score
		}
		return scores, nil
	}

	var pr pipelineResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("decode pipeline response: %w", err)
	}
	if len(pr.Labels) != len(pr.Scores) {
		return nil, fmt.Errorf("labels/scores length mismatch: %d != %d", len(pr.Labels), len(pr.Scores))
	}
	scores := make(map[string]float64, len(pr.Labels))
	for i, l := range pr.Labels {
		scores[l] = pr.Scores[i]
	}
	return scores, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
