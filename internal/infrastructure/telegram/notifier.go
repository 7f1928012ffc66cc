package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/ports"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	// digestLimit keeps a digest well under Telegram's 4096 character cap.
	digestLimit = 10
)

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty baseURL uses
// the public Bot API.
func NewNotifier(botToken, chatID, baseURL string) *Notifier {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyQueued posts one digest per cycle listing the new opportunities.
func (n *Notifier) NotifyQueued(ctx context.Context, cfg domain.ScoutConfig, items []domain.ScoutQueueItem) error {
	if len(items) == 0 {
		return nil
	}
	return n.PublishDigest(ctx, FormatDigest(cfg, items))
}

// PublishDigest posts a Markdown message to Telegram.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", digest)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// FormatDigest renders a cycle's queued items as a Markdown message.
func FormatDigest(cfg domain.ScoutConfig, items []domain.ScoutQueueItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*: %d new opportunities\n", escape(cfg.Name), len(items))

	for i, it := range items {
		if i == digestLimit {
			fmt.Fprintf(&b, "…and %d more\n", len(items)-digestLimit)
			break
		}
		name := escape(it.ProductName)
		if it.ProductURL != "" {
			name = fmt.Sprintf("[%s](%s)", name, it.ProductURL)
		}
		fmt.Fprintf(&b, "• %s: %s $%.2f → %s $%.2f (%.1f%%, +$%.2f)",
			name, it.SourcePlatform, it.SourcePrice, it.TargetPlatform, it.TargetPrice,
			it.EstimatedMarginPct, it.EstimatedProfit)
		if it.Status == domain.StatusApproved {
			b.WriteString(" auto-approved")
		}
		b.WriteString("\n")
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
