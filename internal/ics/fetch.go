package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gcalpaper/internal/config"
	"gcalpaper/internal/log"
)

// Source is one subscribed ICS feed.
type Source struct {
	ID  string
	URL string
}

// fetched is the body of one feed and whether it came from the disk cache.
type fetched struct {
	Body      []byte
	FromCache bool
}

// cacheMeta is the validator pair remembered for conditional GETs.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with ETag/Last-Modified revalidation. The last
// good body of each feed is kept on disk and served when the network
// fails.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher caches under cacheDir, one subdirectory per feed URL. An
// empty cacheDir disables the disk cache.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

func (f *Fetcher) fetch(ctx context.Context, src Source) (fetched, error) {
	if src.URL == "" {
		return fetched{}, errors.New("ics: source URL is empty")
	}

	dir := f.cacheDirFor(src.URL)
	var meta cacheMeta
	var cached []byte
	if dir != "" {
		meta, _ = readMeta(dir)
		cached, _ = os.ReadFile(filepath.Join(dir, "body.ics"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return fetched{}, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(src, cached, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(src, cached, err)
		}
		if dir != "" {
			meta := cacheMeta{
				URL:          src.URL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
				UpdatedAt:    time.Now().UTC(),
			}
			if err := writeCache(dir, meta, body); err != nil {
				log.Error("ics cache write failed", err, "source", src.ID)
			}
		}
		log.Debug("ics feed downloaded", "source", src.ID, "host", redactURL(src.URL), "bytes", len(body))
		return fetched{Body: body}, nil
	case http.StatusNotModified:
		if len(cached) == 0 {
			return fetched{}, errors.New("ics: 304 Not Modified without a cached body")
		}
		log.Debug("ics feed not modified", "source", src.ID)
		return fetched{Body: cached, FromCache: true}, nil
	default:
		return fallback(src, cached, fmt.Errorf("ics: unexpected status %s", resp.Status))
	}
}

func fallback(src Source, cached []byte, err error) (fetched, error) {
	if len(cached) == 0 {
		return fetched{}, err
	}
	log.Warn("ics fetch failed, serving cached feed", "source", src.ID, "host", redactURL(src.URL), "err", err)
	return fetched{Body: cached, FromCache: true}, nil
}

func (f *Fetcher) cacheDirFor(u string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func readMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// writeCache stores the body before the metadata so the validators never
// describe a body that isn't on disk.
func writeCache(dir string, meta cacheMeta, body []byte) error {
	if err := config.WriteFileAtomic(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host: feed URLs usually embed a secret.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/…"
}
