package validation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"
)

// DefaultBlocklistURL is the community-maintained list of words that must not appear in display names
const DefaultBlocklistURL = "https://raw.githubusercontent.com/LDNOOBW/List-of-Dirty-Naughty-Obscene-and-Otherwise-Bad-Words/refs/heads/master/en"

// NameFilter rejects display names containing blocked words.
// The zero value blocks nothing until Load or Add is called.
type NameFilter struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

// NewNameFilter creates a filter seeded with the given words
func NewNameFilter(words ...string) *NameFilter {
	f := &NameFilter{blocked: make(map[string]struct{})}
	f.Add(words...)
	return f
}

// Add adds words to the blocklist
func (f *NameFilter) Add(words ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked == nil {
		f.blocked = make(map[string]struct{})
	}
	for _, w := range words {
		w = strings.TrimSpace(strings.ToLower(w))
		if w != "" {
			f.blocked[w] = struct{}{}
		}
	}
}

// Len returns the number of blocked words
func (f *NameFilter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.blocked)
}

// Load downloads a newline separated blocklist and merges it into the filter
func (f *NameFilter) Load(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build blocklist request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download blocklist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status code from blocklist URL: %d", resp.StatusCode)
	}

	n, err := f.ReadFrom(resp.Body)
	if err != nil {
		return err
	}
	log.Printf("Name filter populated with %d words", n)
	return nil
}

// ReadFrom merges one word per line from r
func (f *NameFilter) ReadFrom(r io.Reader) (int64, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error reading blocklist: %w", err)
	}
	f.Add(words...)
	return int64(len(words)), nil
}

// Check returns a ValidationError when any word of name is blocked
func (f *NameFilter) Check(name string) error {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	lowered := strings.ToLower(name)
	if _, ok := f.blocked[strings.TrimSpace(lowered)]; ok {
		log.Printf("Blocked display name rejected: %q", name)
		return ValidationError{Field: "username", Message: "please choose a different name"}
	}
	for _, token := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if _, ok := f.blocked[token]; ok {
			log.Printf("Blocked display name rejected: %q", name)
			return ValidationError{Field: "username", Message: "please choose a different name"}
		}
	}
	return nil
}
