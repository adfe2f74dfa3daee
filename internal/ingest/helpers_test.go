package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
	"ragpipe/internal/llm"
)

const dim = 8

var errUnavailable = errors.New("503 service unavailable")

// fakeEmbedder maps text to a bag-of-runes vector. Texts containing a key of
// failures fail that many times before succeeding; a negative count fails
// forever.
type fakeEmbedder struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{failures: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	for key, n := range f.failures {
		if !strings.Contains(text, key) {
			continue
		}
		if n < 0 {
			return nil, errUnavailable
		}
		if n > 0 {
			f.failures[key] = n - 1
			return nil, errUnavailable
		}
	}
	v := make([]float32, dim)
	for _, r := range text {
		v[int(r)%dim]++
	}
	return v, nil
}

func (f *fakeEmbedder) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeCompleter struct {
	mu     sync.Mutex
	reply  func(prompt string) (string, error)
	prompt []string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	f.mu.Lock()
	f.prompt = append(f.prompt, prompt)
	f.mu.Unlock()
	return f.reply(prompt)
}

type fakeRegistry struct {
	mu   sync.Mutex
	recs map[string]domain.DocumentRecord
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{recs: map[string]domain.DocumentRecord{}}
}

func (r *fakeRegistry) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *fakeRegistry) Upsert(ctx context.Context, rec domain.DocumentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.ID] = rec
	return nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	tasks []ingest.ChunkTask
}

func (r *fakeRecorder) RecordFailure(ctx context.Context, task ingest.ChunkTask, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func fastRetry() ingest.RetryPolicy {
	return ingest.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, CallTimeout: time.Second}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func prose(n int) string {
	const sentence = "World population reached eight billion in late 2022. "
	return strings.Repeat(sentence, n/len(sentence)+1)[:n]
}
