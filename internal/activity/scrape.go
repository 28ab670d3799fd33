package activity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
)

// URLResolver сопоставляет (company, policy) с адресом опубликованного
// документа.
type URLResolver interface {
	Resolve(company, policy string) (string, error)
}

// StaticResolver — URLResolver поверх фиксированной таблицы.
type StaticResolver map[string]string

// Resolve возвращает адрес по ключу "company/policy".
func (r StaticResolver) Resolve(company, policy string) (string, error) {
	url, ok := r[company+"/"+policy]
	if !ok {
		return "", fmt.Errorf("no url registered for %s/%s", company, policy)
	}
	return url, nil
}

// Scraper — activities получения документов: scrape_metadata
// и fetch_snapshot.
type Scraper struct {
	client   *http.Client
	blobs    BlobStore
	resolver URLResolver
}

// ScraperConfig — конфигурация Scraper.
type ScraperConfig struct {
	// Client — HTTP-клиент; по умолчанию с таймаутом 30s.
	Client *http.Client

	// Blobs — хранилище снапшотов.
	Blobs BlobStore

	// Resolver — источник адресов документов.
	Resolver URLResolver
}

// NewScraper создаёт Scraper.
func NewScraper(cfg ScraperConfig) *Scraper {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Scraper{
		client:   client,
		blobs:    cfg.Blobs,
		resolver: cfg.Resolver,
	}
}

// ScrapeMetadata — HEAD-запрос к документу: etag, last-modified,
// content-length. Сетевые и HTTP-ошибки — managed (transient):
// оркестратор ретраит их сам.
func (s *Scraper) ScrapeMetadata(ctx context.Context, input map[string]any) (map[string]any, error) {
	company, policy, err := companyPolicy(input)
	if err != nil {
		return nil, err
	}

	url, err := s.resolver.Resolve(company, policy)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return ManagedError(ErrTypeFetchFailed, err.Error()), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ManagedError(ErrTypeFetchFailed,
			fmt.Sprintf("HEAD %s: status %d", url, resp.StatusCode)), nil
	}

	return map[string]any{
		"url":            url,
		"etag":           resp.Header.Get("ETag"),
		"last_modified":  resp.Header.Get("Last-Modified"),
		"content_length": resp.ContentLength,
	}, nil
}

// FetchSnapshot — GET документа и сохранение тела в blob-хранилище.
// Ключ снапшота включает timestamp задачи, поэтому повторный вызов
// после retry перезаписывает тот же blob (retry-safe).
func (s *Scraper) FetchSnapshot(ctx context.Context, input map[string]any) (map[string]any, error) {
	company, policy, err := companyPolicy(input)
	if err != nil {
		return nil, err
	}

	url, err := s.resolver.Resolve(company, policy)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return ManagedError(ErrTypeFetchFailed, err.Error()), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ManagedError(ErrTypeFetchFailed,
			fmt.Sprintf("GET %s: status %d", url, resp.StatusCode)), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ManagedError(ErrTypeFetchFailed, err.Error()), nil
	}

	stamp := optionalField(input, "timestamp")
	if stamp == "" {
		stamp = time.Now().UTC().Format(time.RFC3339)
	}
	key := fmt.Sprintf("snapshots/%s/%s/%s.html", company, policy, stamp)

	if err := s.blobs.Put(ctx, key, body); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}

	sum := sha256.Sum256(body)
	return map[string]any{
		"snapshot_key": key,
		"sha256":       hex.EncodeToString(sum[:]),
		"size":         len(body),
	}, nil
}

// companyPolicy читает обязательные поля company и policy.
func companyPolicy(input map[string]any) (string, string, error) {
	company, err := stringField(input, "company")
	if err != nil {
		return "", "", err
	}
	policy, err := stringField(input, "policy")
	if err != nil {
		return "", "", err
	}
	return company, policy, nil
}
