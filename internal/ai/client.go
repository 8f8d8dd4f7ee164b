// Package ai generates reply text and solves sign-in challenges through an
// OpenAI-compatible chat completion API.
package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultModel = "gpt-4o-mini"

// Client is a thin wrapper over the chat completion API.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a client. baseURL may point at any OpenAI-compatible
// endpoint; model falls back to a small default.
func NewClient(apiKey, baseURL, model string) *Client {
	if model == "" {
		model = defaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *Client) complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Reply produces a reply to an incoming message under a rule's prompt.
func (c *Client) Reply(ctx context.Context, prompt, text string) (string, error) {
	if prompt == "" {
		prompt = "Write a short, natural reply to the following chat message. Answer with the reply text only."
	}
	return c.complete(ctx, prompt, text)
}

// SolveCalculation answers an arithmetic challenge embedded in a message.
// The model is instructed to answer with the bare number.
func (c *Client) SolveCalculation(ctx context.Context, text string) (string, error) {
	return c.complete(ctx,
		"The message contains an arithmetic problem. Answer with the numeric result only, no words.",
		text)
}

// ChooseOption picks one option from a challenge's candidates, answering
// with the option text verbatim.
func (c *Client) ChooseOption(ctx context.Context, question string, options []string) (string, error) {
	answer, err := c.complete(ctx,
		"Pick the correct option for the question. Answer with the option text verbatim, nothing else.",
		fmt.Sprintf("Question: %s\nOptions: %s", question, strings.Join(options, " | ")))
	if err != nil {
		return "", err
	}
	for _, opt := range options {
		if strings.EqualFold(answer, opt) {
			return opt, nil
		}
	}
	return "", fmt.Errorf("model answered %q which is not one of the options", answer)
}
