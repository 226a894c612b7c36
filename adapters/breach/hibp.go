// Package breach checks passwords against the Have I Been Pwned range API
// using the k-anonymity scheme: only the first five characters of the SHA-1
// hash ever leave the process.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.pwnedpasswords.com/range/"

// HIBPChecker implements ports.BreachChecker against the HIBP range API.
// It is best-effort: callers treat errors as "no finding".
type HIBPChecker struct {
	client  *http.Client
	baseURL string
}

// Option configures an HIBPChecker.
type Option func(*HIBPChecker)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *HIBPChecker) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HIBPChecker) { c.client = client }
}

// NewHIBPChecker creates a checker with a bounded request timeout so the
// check can never hang a caller.
func NewHIBPChecker(opts ...Option) *HIBPChecker {
	c := &HIBPChecker{
		client:  &http.Client{Timeout: 3 * time.Second},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PwnedCount returns how many times the password appears in known breaches.
func (c *HIBPChecker) PwnedCount(ctx context.Context, password string) (int, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(fmt.Sprintf("%x", sum))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+prefix, nil)
	if err != nil {
		return 0, fmt.Errorf("building breach request: %w", err)
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("breach check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("breach check returned status %d", resp.StatusCode)
	}

	// Response lines are "SUFFIX:COUNT".
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		rest, ok := strings.CutPrefix(line, suffix+":")
		if !ok {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return 0, fmt.Errorf("malformed breach response line: %w", err)
		}
		return count, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading breach response: %w", err)
	}

	return 0, nil
}
