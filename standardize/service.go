package standardize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nfce-scan/nfce_backend/config"
	"github.com/nfce-scan/nfce_backend/models"
)

// Service talks to the Gemini API using the key pool stored in the
// database. Keys rotate automatically: a rate-limited key enters a cooldown
// and the next eligible key takes over immediately.
type Service struct {
	apiURL string
	http   *http.Client

	mu            sync.Mutex
	keys          []models.GeminiKey
	keysFetchedAt time.Time
	cooldownUntil map[int]time.Time
}

const (
	defaultAPIURL    = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"
	keyCacheDuration = 5 * time.Minute
	keyCooldown      = 60 * time.Second
	retriesPerKey    = 3
	// cap on how long rotation sleeps when every key is cooling down
	maxRotationWait = 2 * time.Second
)

var ErrNoActiveKeys = errors.New("no active gemini keys configured")
var ErrKeysExhausted = errors.New("all gemini keys exhausted")

func NewService() *Service {
	apiURL := strings.TrimSpace(os.Getenv("GEMINI_API_URL"))
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Service{
		apiURL:        apiURL,
		http:          &http.Client{Timeout: 60 * time.Second},
		cooldownUntil: make(map[int]time.Time),
	}
}

// activeKeys returns the cached active key pool, refreshing from the
// database every few minutes.
func (s *Service) activeKeys(ctx context.Context) ([]models.GeminiKey, error) {
	s.mu.Lock()
	if len(s.keys) > 0 && time.Since(s.keysFetchedAt) < keyCacheDuration {
		keys := s.keys
		s.mu.Unlock()
		return keys, nil
	}
	s.mu.Unlock()

	keys, err := models.GetActiveGeminiKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNoActiveKeys
	}

	s.mu.Lock()
	s.keys = keys
	s.keysFetchedAt = time.Now()
	s.mu.Unlock()
	return keys, nil
}

// invalidateKeyCache forces the next call to reload the pool, picking up
// fresh usage counters and admin changes.
func (s *Service) invalidateKeyCache() {
	s.mu.Lock()
	s.keys = nil
	s.keysFetchedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Service) eligibleKeys(keys []models.GeminiKey) []models.GeminiKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	eligible := make([]models.GeminiKey, 0, len(keys))
	for _, k := range keys {
		if until, ok := s.cooldownUntil[k.ID]; ok && now.Before(until) {
			continue
		}
		eligible = append(eligible, k)
	}
	return eligible
}

func (s *Service) startCooldown(keyID int) {
	s.mu.Lock()
	s.cooldownUntil[keyID] = time.Now().Add(keyCooldown)
	s.mu.Unlock()
}

// nextEligibleAt reports when the soonest cooldown expires.
func (s *Service) nextEligibleAt(keys []models.GeminiKey) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := time.Time{}
	for _, k := range keys {
		until, ok := s.cooldownUntil[k.ID]
		if !ok {
			return time.Now()
		}
		if next.IsZero() || until.Before(next) {
			next = until
		}
	}
	return next
}

// isRateLimitError recognizes the provider's rate limit responses. The API
// reports these in several shapes, so the check is on the message text.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{"quota exceeded", "rate limit", "429", "resource_exhausted"} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// callGemini makes one generateContent call with one key.
func (s *Service) callGemini(ctx context.Context, prompt string, apiKey string, maxTokens int) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: 0.7, MaxOutputTokens: maxTokens},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"?key="+apiKey, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// processWithRotation runs a prompt through the pool, rotating past rate
// limited keys and recording usage on every attempt.
func (s *Service) processWithRotation(ctx context.Context, prompt string, maxTokens int) (string, error) {
	logger := config.GetLogger()

	keys, err := s.activeKeys(ctx)
	if err != nil {
		return "", err
	}

	maxAttempts := len(keys) * retriesPerKey
	attempts := 0
	for attempts < maxAttempts {
		eligible := s.eligibleKeys(keys)
		if len(eligible) == 0 {
			// every key is cooling down: short waits so a nearby expiry is
			// picked up quickly instead of sleeping a full cooldown
			wait := time.Until(s.nextEligibleAt(keys))
			if wait > maxRotationWait {
				wait = maxRotationWait
			}
			if wait > 0 {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(wait):
				}
			}
			continue
		}

		key := eligible[attempts%len(eligible)]
		result, callErr := s.callGemini(ctx, prompt, key.ApiKey, maxTokens)
		if callErr == nil {
			if err := models.BumpGeminiKeyStats(ctx, key.ID, true); err != nil {
				config.LogError(logger, "standardize", "processWithRotation", "bump key stats", key.ID, err)
			}
			s.invalidateKeyCache()
			return result, nil
		}

		if err := models.BumpGeminiKeyStats(ctx, key.ID, false); err != nil {
			config.LogError(logger, "standardize", "processWithRotation", "bump key stats", key.ID, err)
		}
		s.invalidateKeyCache()

		if isRateLimitError(callErr) {
			s.startCooldown(key.ID)
			logger.WithField("key", key.Name).Warn("gemini key rate limited; rotating")
		} else {
			config.LogError(logger, "standardize", "processWithRotation", "gemini call", key.Name, callErr)
		}
		attempts++
	}
	return "", ErrKeysExhausted
}

// TestKey makes a minimal call with one specific key to verify it works.
func (s *Service) TestKey(ctx context.Context, id int) error {
	key, err := models.GetGeminiKey(ctx, id)
	if err != nil {
		return err
	}
	_, callErr := s.callGemini(ctx, `Responda apenas com "OK" se conseguir me entender.`, key.ApiKey, 16)
	if err := models.BumpGeminiKeyStats(ctx, id, callErr == nil); err != nil {
		config.LogError(config.GetLogger(), "standardize", "TestKey", "bump key stats", id, err)
	}
	s.invalidateKeyCache()
	return callErr
}

// decodeObject parses a model response expected to hold one JSON object,
// tolerating markdown fences and surrounding chatter.
func decodeObject(raw string, dest interface{}) error {
	return decodeLoose(raw, dest, "{", "}")
}

// decodeArray is decodeObject for array-shaped responses.
func decodeArray(raw string, dest interface{}) error {
	return decodeLoose(raw, dest, "[", "]")
}

func decodeLoose(raw string, dest interface{}, openTok, closeTok string) error {
	if err := json.Unmarshal([]byte(raw), dest); err == nil {
		return nil
	}

	stripped := strings.ReplaceAll(raw, "```json", "")
	stripped = strings.ReplaceAll(stripped, "```", "")
	stripped = strings.TrimSpace(stripped)
	if err := json.Unmarshal([]byte(stripped), dest); err == nil {
		return nil
	}

	start := strings.Index(raw, openTok)
	end := strings.LastIndex(raw, closeTok)
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), dest); err == nil {
			return nil
		}
	}
	return fmt.Errorf("response is not valid JSON: %s", clipResponse(raw, 200))
}

func clipResponse(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n]
	}
	return s
}
