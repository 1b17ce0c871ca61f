// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SessionSource hands out the process-wide provider session.
//
// # Description
//
// SessionSource abstracts lazy construction of the shared LLMClient so the
// streaming handler does not own provider lifecycle. Implementations must
// be safe for concurrent use; every in-flight request acquires through the
// same source.
type SessionSource interface {
	// Acquire returns the shared client, constructing it on first use.
	// A construction failure is returned to every concurrent caller and
	// is retried on the next Acquire; nothing is cached on failure.
	Acquire(ctx context.Context) (LLMClient, error)
}

// =============================================================================
// Lazy Implementation
// =============================================================================

// lazySessionSource builds the client once, on demand.
//
// # Description
//
// Construction is guarded by a singleflight group: concurrent first
// requests collapse into one build, so the double-construction race of a
// naive lazy global cannot occur. A successful build is cached for the
// process lifetime; a failed build leaves the source empty so the next
// request retries (e.g., the credential was provisioned after startup).
//
// # Thread Safety
//
// Thread-safe. The cached client is protected by an RWMutex; builds are
// serialized by singleflight.
type lazySessionSource struct {
	mu     sync.RWMutex
	client LLMClient
	group  singleflight.Group
	build  func() (LLMClient, error)
}

// NewLazySessionSource creates a SessionSource around a build function.
//
// # Inputs
//
//   - build: Constructor for the shared client, typically
//     llm.NewClientFromEnv. Must not be nil.
//
// # Outputs
//
//   - SessionSource: Ready for concurrent use.
//
// # Examples
//
//	sessions := llm.NewLazySessionSource(llm.NewClientFromEnv)
//	client, err := sessions.Acquire(ctx)
func NewLazySessionSource(build func() (LLMClient, error)) SessionSource {
	if build == nil {
		panic("NewLazySessionSource: build must not be nil")
	}
	return &lazySessionSource{build: build}
}

// Acquire returns the shared client, constructing it on first use.
func (s *lazySessionSource) Acquire(_ context.Context) (LLMClient, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	built, err, _ := s.group.Do("session", func() (interface{}, error) {
		// Re-check under the flight: a previous winner may have cached.
		s.mu.RLock()
		cached := s.client
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		constructed, buildErr := s.build()
		if buildErr != nil {
			return nil, buildErr
		}

		s.mu.Lock()
		s.client = constructed
		s.mu.Unlock()
		slog.Info("Provider session initialized")
		return constructed, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(LLMClient), nil
}

var _ SessionSource = (*lazySessionSource)(nil)
