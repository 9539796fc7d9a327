package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"roserade/internal/config"
)

// sleepFunc suspends for d or until the context is done. Injectable so retry
// behavior is testable without real delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ollama is a Client backed by an Ollama-compatible /api/embed endpoint.
type Ollama struct {
	host       string
	model      string
	dimension  int
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	inflight   chan struct{}
	httpClient *http.Client
	sleep      sleepFunc
	logger     *slog.Logger
}

// NewOllama builds the gateway from validated configuration.
func NewOllama(cfg config.EmbeddingConfig, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		host:       cfg.Host,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Duration(cfg.RetryDelay),
		inflight:   make(chan struct{}, cfg.MaxInflight),
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout)},
		sleep:      realSleep,
		logger:     logger.With("component", "embedding"),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates a single embedding for the query path.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch partitions texts into service-sized batches and runs them with
// bounded concurrency. Results come back in input order. The first failing
// batch (after retries) fails the call with a BatchError naming its range; a
// fatal error cancels the remaining batches.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for start := 0; start < len(texts); start += o.batchSize {
		end := start + o.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		select {
		case o.inflight <- struct{}{}:
		case <-ctx.Done():
			mu.Lock()
			if firstErr == nil {
				firstErr = &BatchError{Start: start, End: end, Err: &TransientError{Err: ctx.Err()}}
			}
			mu.Unlock()
			goto wait
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			defer func() { <-o.inflight }()

			vecs, err := o.embedWithRetry(ctx, texts[start:end])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = &BatchError{Start: start, End: end, Err: err}
					cancel()
				}
				return
			}
			copy(results[start:end], vecs)
		}(start, end)
	}

wait:
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// embedWithRetry calls the service for one batch, retrying transient
// failures with exponential backoff up to maxRetries additional attempts.
func (o *Ollama) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	delay := o.retryDelay
	var lastErr error

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			o.logger.Debug("retrying embedding batch",
				"attempt", attempt, "delay", delay, "error", lastErr)
			if err := o.sleep(ctx, delay); err != nil {
				return nil, &TransientError{Err: err}
			}
			delay *= 2
		}

		vecs, err := o.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if IsFatal(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (o *Ollama) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, &FatalError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable.
		return nil, &TransientError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &TransientError{Err: cause}
		}
		return nil, &FatalError{Err: cause}
	}

	var body embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(body.Embeddings) != len(texts) {
		return nil, &FatalError{Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(body.Embeddings))}
	}
	for i, vec := range body.Embeddings {
		if len(vec) != o.dimension {
			return nil, &FatalError{Err: fmt.Errorf(
				"embedding %d has dimension %d, expected %d (model/config mismatch?)", i, len(vec), o.dimension)}
		}
	}
	return body.Embeddings, nil
}
