package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/logger"
	"github.com/timmy/roastpage/internal/repository"
)

// RoastReader is the read side of RoastStore.
type RoastReader interface {
	Ping(ctx context.Context) error
	GetByID(ctx context.Context, id string) (*domain.Roast, error)
}

// FeedbackReader is the read side of FeedbackStore.
type FeedbackReader interface {
	ListByRoastID(ctx context.Context, roastID string) ([]domain.FeedbackItem, error)
}

// RoastResult is what readers of a roast receive. Failures are reported
// through Success and Error, never as a Go error.
type RoastResult struct {
	Success              bool                  `json:"success"`
	Roast                *domain.Roast         `json:"roast,omitempty"`
	FeedbackItems        []domain.FeedbackItem `json:"feedbackItems"`
	LimitedFunctionality bool                  `json:"limitedFunctionality"`
	MissingOptionalVars  []string              `json:"missingOptionalVars"`
	Error                string                `json:"error,omitempty"`
}

// NotFound reports whether the result failed because the roast is missing.
func (r *RoastResult) NotFound() bool {
	return !r.Success && r.Error == notFoundMessage
}

var notFoundMessage = "Failed to get roast: " + ErrNotFound.Error()

type cachedResult struct {
	result  *RoastResult
	expires time.Time
}

// ReaderService assembles roasts with their feedback for display. Results
// of finished roasts are cached until they change or cacheTTL passes.
type ReaderService struct {
	roasts   RoastReader
	feedback FeedbackReader
	caps     Capabilities
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cachedResult
	// gen advances on every invalidation. A read that started before an
	// invalidation must not populate the cache.
	gen uint64
}

// NewReaderService creates a ReaderService. A zero cacheTTL disables caching.
func NewReaderService(roasts RoastReader, feedback FeedbackReader, caps Capabilities, cacheTTL time.Duration) *ReaderService {
	return &ReaderService{
		roasts:   roasts,
		feedback: feedback,
		caps:     caps,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cachedResult),
	}
}

// Capabilities returns the capability flags attached to every result.
func (s *ReaderService) Capabilities() Capabilities {
	return s.caps
}

// Get returns the roast with id and its feedback items.
func (s *ReaderService) Get(ctx context.Context, id string) (result *RoastResult) {
	ctx = logger.SetRoastID(ctx, id)
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Errorf("Panic while reading roast: %v", r)
			result = s.failure(fmt.Sprintf("Failed to get roast: %v", r))
		}
	}()

	cached, gen := s.cached(id)
	if cached != nil {
		return cached
	}

	if err := s.roasts.Ping(ctx); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Store liveness check failed")
	}

	roast, err := s.roasts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRoastNotFound) {
			return s.failure(notFoundMessage)
		}
		logger.FromContext(ctx).WithError(err).Error("Failed to get roast")
		return s.failure("Failed to get roast: " + err.Error())
	}

	items, err := s.feedback.ListByRoastID(ctx, id)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to get feedback items, returning none")
		items = nil
	}
	if items == nil {
		items = []domain.FeedbackItem{}
	}

	result = &RoastResult{
		Success:              true,
		Roast:                roast,
		FeedbackItems:        items,
		LimitedFunctionality: s.caps.LimitedFunctionality(),
		MissingOptionalVars:  s.caps.Check(),
	}
	if roast.Status.IsTerminal() {
		s.store(id, gen, result)
	}
	return result
}

// Invalidate drops the cached result for id.
func (s *ReaderService) Invalidate(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.gen++
	s.mu.Unlock()
}

// RoastChanged implements ChangeListener.
func (s *ReaderService) RoastChanged(ctx context.Context, roastID string, status domain.RoastStatus, version int) {
	s.Invalidate(roastID)
}

func (s *ReaderService) failure(msg string) *RoastResult {
	return &RoastResult{
		Success:              false,
		FeedbackItems:        []domain.FeedbackItem{},
		LimitedFunctionality: s.caps.LimitedFunctionality(),
		MissingOptionalVars:  s.caps.Check(),
		Error:                msg,
	}
}

// cached returns the live cache entry for id, if any, and the generation
// to hand back to store after a fresh read.
func (s *ReaderService) cached(id string) (*RoastResult, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheTTL <= 0 {
		return nil, s.gen
	}
	entry, ok := s.cache[id]
	if !ok {
		return nil, s.gen
	}
	if time.Now().After(entry.expires) {
		delete(s.cache, id)
		return nil, s.gen
	}
	return entry.result, s.gen
}

// store caches result unless an invalidation happened since gen was taken.
func (s *ReaderService) store(id string, gen uint64, result *RoastResult) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.cache[id] = cachedResult{result: result, expires: time.Now().Add(s.cacheTTL)}
}
