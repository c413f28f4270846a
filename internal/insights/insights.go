// Package insights generates a trading retrospective from the analytics
// summary using an LLM.
package insights

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"trade-journal/internal/analytics"
	"trade-journal/internal/pattern"
)

const systemPrompt = `You are a trading performance coach reviewing a retail trader's journal.
You are given aggregate statistics over their closed trades, broken down by symbol, product type, and detected market regime.
Write a short, direct retrospective: what worked, what did not, and one or two concrete habits to change.
Ground every claim in the numbers provided. Do not invent trades or prices. Keep it under 300 words.`

// LLMClient is the completion surface the generator needs.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient implements LLMClient using the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI LLM client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CompleteWithSystem sends a prompt with a system message to the LLM.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Generator turns analytics summaries into narrative retrospectives.
type Generator struct {
	llm        LLMClient
	classifier *pattern.Classifier
}

// NewGenerator creates an insights generator. classifier may be nil; it is
// only used to expand pattern labels into their names.
func NewGenerator(llm LLMClient, classifier *pattern.Classifier) *Generator {
	return &Generator{llm: llm, classifier: classifier}
}

// Generate produces a retrospective for the given summary.
func (g *Generator) Generate(ctx context.Context, summary *analytics.Summary) (string, error) {
	return g.llm.CompleteWithSystem(ctx, systemPrompt, g.buildPrompt(summary))
}

// buildPrompt renders the summary into a compact plain-text report the
// model can reason over.
func (g *Generator) buildPrompt(s *analytics.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Closed trades: %d of %d total\n", s.Stats.ClosedTrades, s.Stats.TotalTrades)
	fmt.Fprintf(&b, "Total PnL: %.2f, average per trade: %.2f\n", s.Stats.TotalPnL, s.Stats.AvgPnL)
	fmt.Fprintf(&b, "Win rate: %.1f%% (%d wins, %d losses)\n", s.Stats.WinRate, s.Stats.WinCount, s.Stats.LossCount)
	fmt.Fprintf(&b, "Average win: %.2f, average loss: %.2f\n", s.Stats.AvgWin, s.Stats.AvgLoss)
	fmt.Fprintf(&b, "Best trade: %.2f, worst trade: %.2f\n", s.Stats.BestTrade, s.Stats.WorstTrade)

	bestWin, worstLoss := analytics.Streaks(s.Daily)
	fmt.Fprintf(&b, "Longest winning streak: %d days, longest losing streak: %d days\n", bestWin, worstLoss)
	fmt.Fprintf(&b, "Max drawdown of cumulative PnL: %.2f\n", analytics.MaxDrawdown(s.Daily))

	if len(s.BySymbol) > 0 {
		b.WriteString("\nBy symbol:\n")
		for _, gstat := range s.BySymbol {
			fmt.Fprintf(&b, "  %s: %d trades, pnl %.2f, win rate %.1f%%\n", gstat.Key, gstat.Trades, gstat.TotalPnL, gstat.WinRate)
		}
	}

	if len(s.ByProduct) > 0 {
		b.WriteString("\nBy product type:\n")
		for _, gstat := range s.ByProduct {
			fmt.Fprintf(&b, "  %s: %d trades, pnl %.2f, win rate %.1f%%\n", gstat.Key, gstat.Trades, gstat.TotalPnL, gstat.WinRate)
		}
	}

	if len(s.ByPattern) > 0 {
		b.WriteString("\nBy market regime:\n")
		for _, gstat := range s.ByPattern {
			name := gstat.Key
			if g.classifier != nil {
				if p := g.classifier.Pattern(gstat.Key); p != nil {
					name = fmt.Sprintf("%s (%s)", p.Name, gstat.Key)
				}
			}
			fmt.Fprintf(&b, "  %s: %d trades, pnl %.2f, win rate %.1f%%\n", name, gstat.Trades, gstat.TotalPnL, gstat.WinRate)
		}
	}

	return b.String()
}
