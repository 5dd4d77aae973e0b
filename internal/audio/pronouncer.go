// Package audio caches spoken pronunciations of spelling words.
package audio

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTSURL is Google Translate's text-to-speech endpoint (no API key needed)
const DefaultTTSURL = "https://translate.google.com/translate_tts"

const ttsRequestTimeout = 10 * time.Second

// Pronouncer converts words to speech once and serves the cached MP3 after
type Pronouncer struct {
	audioDir string
	ttsURL   string
	client   *http.Client
	group    singleflight.Group
}

// NewPronouncer creates a pronouncer caching files in audioDir
func NewPronouncer(audioDir, ttsURL string) (*Pronouncer, error) {
	if ttsURL == "" {
		ttsURL = DefaultTTSURL
	}
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	return &Pronouncer{
		audioDir: audioDir,
		ttsURL:   ttsURL,
		client:   &http.Client{Timeout: ttsRequestTimeout},
	}, nil
}

// Filename returns the cache file name for word
func Filename(word string) string {
	sanitized := strings.ToLower(strings.TrimSpace(word))
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	return fmt.Sprintf("word_%s.mp3", sanitized)
}

// Pronounce returns the path of the MP3 for word, generating it on first use.
// Concurrent requests for the same word share one download.
func (p *Pronouncer) Pronounce(ctx context.Context, word string) (string, error) {
	filename := Filename(word)
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid word %q", word)
	}
	path := filepath.Join(p.audioDir, filename)

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	_, err, _ := p.group.Do(filename, func() (interface{}, error) {
		if _, err := os.Stat(path); err == nil {
			return nil, nil
		}
		return nil, p.generate(ctx, word, path)
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate audio: %w", err)
	}
	return path, nil
}

// generate downloads speech for text into outputPath. The file only appears
// once complete, so readers never see a partial MP3.
func (p *Pronouncer) generate(ctx context.Context, text, outputPath string) error {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", "en")
	params.Set("client", "tw-ob")
	params.Set("textlen", fmt.Sprintf("%d", len(text)))

	ctx, cancel := context.WithTimeout(ctx, ttsRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ttsURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// required by Google
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(p.audioDir, ".tts-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return os.Rename(tmp.Name(), outputPath)
}

// Prune removes cached files for words no longer in keep
func (p *Pronouncer) Prune(keep []string) (int, error) {
	files, err := os.ReadDir(p.audioDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read audio directory: %w", err)
	}

	wanted := make(map[string]bool, len(keep))
	for _, w := range keep {
		wanted[Filename(w)] = true
	}

	removed := 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".mp3" || wanted[file.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(p.audioDir, file.Name())); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove orphaned audio file %s: %v", file.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}
