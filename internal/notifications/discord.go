// Package notifications posts operator alerts to a Discord webhook.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/costs"
)

const (
	colorRed   = 0xFF0000
	colorGreen = 0x00FF00
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *zap.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, client *http.Client, logger *zap.Logger) *Discord {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     client,
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts msg and waits for the answer, since the process is usually
// about to exit. Errors are logged, never returned.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	body, err := json.Marshal(msg)
	if err != nil {
		d.logger.Warn("discord: failed to marshal message", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("discord: failed to create request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("discord: failed to send webhook", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.logger.Warn("discord: webhook rejected message", zap.Int("status", resp.StatusCode))
	}
}

// NotifyHalted reports that the voice loop stopped on err.
func (d *Discord) NotifyHalted(ctx context.Context, err error, turns int) {
	d.send(ctx, discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Voice loop halted",
			Description: fmt.Sprintf("`%v`", err),
			Color:       colorRed,
			Fields: []embedField{
				{Name: "Turns completed", Value: fmt.Sprint(turns), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

// NotifySessionEnded sends the spend of a session that stopped normally.
func (d *Discord) NotifySessionEnded(ctx context.Context, turns int, c costs.Costs) {
	d.send(ctx, discordMessage{
		Embeds: []discordEmbed{{
			Title: "Voice session ended",
			Color: colorGreen,
			Fields: []embedField{
				{Name: "Turns", Value: fmt.Sprint(turns), Inline: true},
				{Name: "STT", Value: cents(c.STTCostCents), Inline: true},
				{Name: "LLM", Value: cents(c.LLMCostCents), Inline: true},
				{Name: "TTS", Value: cents(c.TTSCostCents), Inline: true},
				{Name: "Total", Value: cents(c.TotalCostCents), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

func cents(c int) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}
