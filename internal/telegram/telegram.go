// Package telegram delivers the rendered briefing to a Telegram chat.
// Reports are split on numbered section headers and long sections are
// chunked below Telegram's message size limit before sending.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/felixlee/mountainbrief/internal/httputil"
)

// MaxMessageChars keeps chunks comfortably under Telegram's 4096-char
// sendMessage limit.
const MaxMessageChars = 3500

const defaultPace = 350 * time.Millisecond

var sectionHeader = regexp.MustCompile(`^\d\)\s+`)

// Client posts plain-text messages through the Bot API.
type Client struct {
	Token   string
	ChatID  string
	BaseURL string        // defaults to https://api.telegram.org
	Pace    time.Duration // delay between chunk sends
	HTTP    *http.Client
}

func NewClient(token, chatID string) *Client {
	return &Client{
		Token:   token,
		ChatID:  chatID,
		BaseURL: "https://api.telegram.org",
		Pace:    defaultPace,
		HTTP:    httputil.NewClient(),
	}
}

// splitSections breaks the report into its preamble plus one part per
// numbered section ("1) ...", "2) ..." and so on).
func splitSections(report string) []string {
	var header []string
	var sections [][]string
	var current []string

	for _, raw := range strings.Split(strings.TrimSpace(report), "\n") {
		line := strings.TrimRight(raw, " \t")
		if sectionHeader.MatchString(line) {
			if current != nil {
				sections = append(sections, current)
			}
			current = []string{line}
			continue
		}
		if current == nil {
			header = append(header, line)
		} else {
			current = append(current, line)
		}
	}
	if current != nil {
		sections = append(sections, current)
	}

	var out []string
	if part := strings.TrimSpace(strings.Join(header, "\n")); part != "" {
		out = append(out, part)
	}
	for _, sec := range sections {
		if part := strings.TrimSpace(strings.Join(sec, "\n")); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitLongText splits a section on line boundaries so no chunk
// exceeds maxChars, with a hard character split for a single overlong
// line.
func splitLongText(text string, maxChars int) []string {
	clean := strings.TrimSpace(text)
	if len(clean) <= maxChars {
		return []string{clean}
	}

	var chunks []string
	var current []string
	currentLen := 0
	for _, raw := range strings.Split(clean, "\n") {
		line := strings.TrimRight(raw, " \t")
		addLen := len(line)
		if len(current) > 0 {
			addLen++
		}
		if len(current) > 0 && currentLen+addLen > maxChars {
			chunks = append(chunks, strings.TrimSpace(strings.Join(current, "\n")))
			current = []string{line}
			currentLen = len(line)
		} else {
			current = append(current, line)
			currentLen += addLen
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, "\n")))
	}

	var safe []string
	for _, chunk := range chunks {
		if len(chunk) <= maxChars {
			safe = append(safe, chunk)
			continue
		}
		for start := 0; start < len(chunk); start += maxChars {
			end := start + maxChars
			if end > len(chunk) {
				end = len(chunk)
			}
			safe = append(safe, chunk[start:end])
		}
	}
	return safe
}

// BuildChunks turns a full report into send-ready messages. Sections
// that had to be split carry a "[Part i.n/total]" marker so recipients
// can reassemble them.
func BuildChunks(report string) []string {
	var chunks []string
	for idx, part := range splitSections(report) {
		sectionChunks := splitLongText(part, MaxMessageChars)
		if len(sectionChunks) == 1 {
			chunks = append(chunks, sectionChunks[0])
			continue
		}
		total := len(sectionChunks)
		for n, piece := range sectionChunks {
			chunks = append(chunks, fmt.Sprintf("[Part %d.%d/%d]\n%s", idx+1, n+1, total, piece))
		}
	}
	return chunks
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *Client) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                c.ChatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.BaseURL, c.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram: %s", out.Description)
		}
		return fmt.Errorf("telegram: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Send chunks the report and posts every chunk, pacing requests to
// stay clear of Bot API rate limits. All chunks are attempted; the
// error aggregates any failures.
func (c *Client) Send(ctx context.Context, report string) (int, error) {
	chunks := BuildChunks(report)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("report was empty after chunking")
	}

	pace := c.Pace
	if pace <= 0 {
		pace = defaultPace
	}

	sent := 0
	var failures []string
	for i, chunk := range chunks {
		if err := c.sendMessage(ctx, chunk); err != nil {
			failures = append(failures, fmt.Sprintf("chunk %d: %v", i+1, err))
		} else {
			sent++
		}
		if i < len(chunks)-1 {
			select {
			case <-time.After(pace):
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		}
	}
	if len(failures) > 0 {
		return sent, fmt.Errorf("sent %d/%d chunks; failures: %s", sent, len(chunks), strings.Join(failures, " | "))
	}
	return sent, nil
}
