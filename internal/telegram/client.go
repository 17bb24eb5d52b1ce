// Package telegram sends run summaries via the Telegram Bot API.
// It formats a finished analysis run into a short MarkdownV2 message and
// delivers it with retry logic for reliability.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/rescatter/internal/models"
)

// sender is the part of the bot API the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Send sends a notification for a finished run
func (c *Client) Send(summary models.RunSummary) error {
	msg := tgbotapi.NewMessage(c.chatID, formatMessage(summary))
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatMessage formats a run summary into a Telegram message
func formatMessage(s models.RunSummary) string {
	var b strings.Builder

	title := s.Analysis
	if s.Channel != "" {
		title += " / " + s.Channel
	}
	fmt.Fprintf(&b, "🔬 *Analysis finished: %s*\n\n", escapeMarkdownV2(title))
	fmt.Fprintf(&b, "📅 Finished: %s\n", escapeMarkdownV2(s.FinishedAt.Format("2006-01-02 15:04:05")))
	fmt.Fprintf(&b, "🆔 Run: `%s`\n\n", s.ID)

	files := fmt.Sprintf("%s of %s processed", humanize.Comma(int64(s.FilesProcessed)), humanize.Comma(int64(s.FilesListed)))
	if s.FilesSkipped > 0 {
		files += fmt.Sprintf(", %s skipped", humanize.Comma(int64(s.FilesSkipped)))
	}
	fmt.Fprintf(&b, "📂 Files: %s\n", escapeMarkdownV2(files))
	fmt.Fprintf(&b, "🎯 Events: %s\n", escapeMarkdownV2(humanize.Comma(int64(s.Events))))
	if s.Decays > 0 {
		fmt.Fprintf(&b, "💥 Decays: %s \\(%s rescattered, %s\\)\n",
			escapeMarkdownV2(humanize.Comma(int64(s.Decays))),
			escapeMarkdownV2(humanize.Comma(int64(s.Rescattered))),
			escapeMarkdownV2(formatPercent(s.Rescattered, s.Decays)))
	}

	result := "undefined \\(no samples\\)"
	if s.ResultDefined {
		result = "*" + escapeMarkdownV2(strconv.FormatFloat(s.Result, 'g', 6, 64)) + "*"
	}
	fmt.Fprintf(&b, "📊 Result: %s\n", result)
	fmt.Fprintf(&b, "⏱ Duration: %s\n", escapeMarkdownV2(formatDuration(s.Duration())))

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

func formatPercent(part, whole int) string {
	if whole == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(part)/float64(whole))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	case d >= time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}
