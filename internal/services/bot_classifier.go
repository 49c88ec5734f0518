package services

import (
	"strings"
)

// DefaultBotSignatures are matched case-insensitively as substrings of the
// user agent.
var DefaultBotSignatures = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python-requests", "http", "monitor", "test", "scan", "headless",
}

// Bot classification signals.
const (
	BotReasonMissingUA = "missing_user_agent"
	BotReasonEmptyUA   = "empty_user_agent"
	BotReasonSignature = "signature"
)

// RequestShape carries request properties other than the user agent string.
type RequestShape struct {
	HasUserAgent bool
}

// BotClassifier flags likely automated traffic from the user agent.
type BotClassifier struct {
	signatures []string
}

// NewBotClassifier lowercases and de-duplicates signatures. An empty list
// uses DefaultBotSignatures.
func NewBotClassifier(signatures []string) *BotClassifier {
	if len(signatures) == 0 {
		signatures = DefaultBotSignatures
	}

	seen := make(map[string]struct{}, len(signatures))
	normalized := make([]string, 0, len(signatures))
	for _, sig := range signatures {
		sig = strings.ToLower(strings.TrimSpace(sig))
		if sig == "" {
			continue
		}
		if _, ok := seen[sig]; ok {
			continue
		}
		seen[sig] = struct{}{}
		normalized = append(normalized, sig)
	}

	return &BotClassifier{signatures: normalized}
}

// Classify reports whether the request looks automated.
func (c *BotClassifier) Classify(userAgent string, shape RequestShape) bool {
	isBot, _ := c.ClassifyReason(userAgent, shape)
	return isBot
}

// ClassifyReason is Classify plus the signal that fired, and the matching
// signature when the signal is BotReasonSignature.
func (c *BotClassifier) ClassifyReason(userAgent string, shape RequestShape) (bool, string) {
	if !shape.HasUserAgent {
		return true, BotReasonMissingUA
	}

	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return true, BotReasonEmptyUA
	}

	for _, sig := range c.signatures {
		if strings.Contains(ua, sig) {
			return true, BotReasonSignature + ":" + sig
		}
	}
	return false, ""
}
