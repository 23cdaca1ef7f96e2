// Package avatar builds deterministic character portrait URLs from a
// player's descriptive attributes. Portraits come from the pollinations.ai
// image service; the same name, race, class, and sex always produce the
// same URL, so every device renders the same picture without any portrait
// state being stored.
package avatar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/game/state"
)

const baseURL = "https://image.pollinations.ai/prompt"

// URL returns the portrait URL for p.
func URL(p state.PlayerProfile) string {
	gender := "female"
	if p.Attributes.Sex == "M" {
		gender = "male"
	}
	race := p.Attributes.Race
	if race == "" || race == "Humano" || race == "Human" {
		race = "human"
	}
	class := p.Attributes.Class
	classPart := ""
	if class != "" && class != "Ninguna" && class != "None" {
		classPart = ", " + class + " class"
	}

	prompt := strings.Join([]string{
		"Munchkin card game character portrait",
		race + " race" + classPart,
		gender,
		"John Kovalic cartoon illustration style",
		"fantasy humor",
		"colorful",
		"white background",
		"cute chibi",
		"square format",
		"no text",
	}, ", ")

	seed := hashCode(p.Name + "||" + p.Attributes.Race + "||" + p.Attributes.Class + "||" + p.Attributes.Sex)
	return fmt.Sprintf("%s/%s?width=256&height=256&nologo=true&seed=%d&model=flux-schnell",
		baseURL, encodeComponent(prompt), seed)
}

// encodeComponent escapes a prompt the way browsers do in a URL component:
// spaces become %20, never +.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// hashCode folds a string into a non-negative seed using 31x accumulation
// over UTF-16 code units with 32-bit wraparound. Existing portraits were
// seeded this way, so the exact arithmetic is load-bearing.
func hashCode(s string) int64 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	out := int64(h)
	if out < 0 {
		out = -out
	}
	return out
}

// Warmer pre-fetches portrait URLs so the image service has the render
// cached before any player's screen asks for it.
type Warmer struct {
	client *http.Client
	logger *zap.Logger
}

// NewWarmer creates a Warmer. client may be nil to use the default client.
func NewWarmer(client *http.Client, logger *zap.Logger) *Warmer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Warmer{client: client, logger: logger}
}

// Warm requests rawURL and discards the response. Failures are logged and
// swallowed; warming is purely an optimisation.
func (w *Warmer) Warm(ctx context.Context, rawURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		w.logger.Warn("building avatar warmup request", zap.Error(err))
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debug("avatar warmup failed", zap.String("url", rawURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}
