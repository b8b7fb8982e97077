// Package claude implements zero-shot label scoring on the Anthropic
// Messages API.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel   = "claude-haiku-4-5"
	responseTokens = 256
)

const systemPrompt = `You classify IT support messages. You will be given a message and a list of candidate labels.
Reply with a single JSON object mapping every candidate label, verbatim, to the probability that the label describes the message.
Probabilities are numbers between 0 and 1 and should sum to 1. Reply with the JSON object only.`

// messagesAPI is the subset of the SDK message service the client calls.
type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client scores text against labels by asking Claude for a probability per
// label.
type Client struct {
	messages messagesAPI
	model    string
}

// New creates a Client for the given API key and model name. An empty model
// selects DefaultModel.
func New(apiKey, model string) *Client {
	sdk := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newWithAPI(&sdk.Messages, model)
}

func newWithAPI(api messagesAPI, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{messages: api, model: model}
}

// Score implements category.Scorer.
func (c *Client) Score(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: responseTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(text, labels))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}
	return parseScores(responseText(msg), labels)
}

func buildPrompt(text string, labels []string) string {
	var b strings.Builder
	b.WriteString("Candidate labels:\n")
	for _, l := range labels {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("\nMessage:\n")
	b.WriteString(text)
	return b.String()
}

func responseText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

var errNoJSON = errors.New("no JSON object in response")

// parseScores extracts the JSON object from the reply, keeps only the
// requested labels and rescales them to sum to 1.
func parseScores(reply string, labels []string) (map[string]float64, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end <= start {
		return nil, errNoJSON
	}

	var raw map[string]float64
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}

	scores := make(map[string]float64, len(labels))
	var sum float64
	for _, l := range labels {
		v, ok := raw[l]
		if !ok || v < 0 {
			continue
		}
		scores[l] = v
		sum += v
	}
	if sum == 0 {
		return nil, fmt.Errorf("no usable scores for %d labels", len(labels))
	}
	for l, v := range scores {
		scores[l] = v / sum
	}
	return scores, nil
}
