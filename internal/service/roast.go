package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/logger"
	"github.com/timmy/roastpage/internal/repository"
	"github.com/timmy/roastpage/internal/worker"
)

var (
	// ErrNotFound is returned when a roast does not exist or cannot be retried.
	ErrNotFound = errors.New("roast not found")
	// ErrInvalidURL is returned for empty or unparseable target URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrStaleExecution marks an execution whose roast was retried or deleted
	// while it ran. Such an execution stops without writing anything else.
	ErrStaleExecution = errors.New("roast execution superseded")
)

const failureWriteTimeout = 10 * time.Second

// StatusDeleted is reported to listeners when a roast is removed.
const StatusDeleted domain.RoastStatus = "deleted"

// RoastStore persists roast jobs.
type RoastStore interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, roast *domain.Roast) error
	GetByID(ctx context.Context, id string) (*domain.Roast, error)
	List(ctx context.Context, limit, offset int) ([]domain.Roast, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.Roast, error)
	MarkProcessing(ctx context.Context, id string, version int) error
	SetScreenshot(ctx context.Context, id string, version int, screenshotURL string) error
	Complete(ctx context.Context, id string, version int, analysis *domain.AnalysisResult, completedAt time.Time) error
	Fail(ctx context.Context, id string, version int, completedAt time.Time) error
	ResetForRetry(ctx context.Context, id string) (*domain.Roast, error)
	Delete(ctx context.Context, id string) error
}

// FeedbackStore persists feedback items.
type FeedbackStore interface {
	ListByRoastID(ctx context.Context, roastID string) ([]domain.FeedbackItem, error)
	DeleteByRoastID(ctx context.Context, roastID string) (int64, error)
	ReplaceForRoast(ctx context.Context, roastID string, version int, items []domain.FeedbackItem) (int, []repository.ItemError, error)
}

// Screenshotter produces screenshot references.
type Screenshotter interface {
	Capture(ctx context.Context, targetURL string) (string, error)
	Placeholder(targetURL string) string
}

// Analyzer produces critiques.
type Analyzer interface {
	Analyze(ctx context.Context, targetURL, screenshotRef string) (*domain.AnalysisResult, error)
}

// Archiver copies screenshots into object storage.
type Archiver interface {
	Archive(ctx context.Context, roastID string, version int, sourceURL string) (string, error)
	Remove(ctx context.Context, screenshotURL string) error
}

// Submitter queues background work.
type Submitter interface {
	Submit(name string, fields logger.Fields, fn worker.Task) error
}

// ChangeListener is told whenever a roast's displayable state changes.
type ChangeListener interface {
	RoastChanged(ctx context.Context, roastID string, status domain.RoastStatus, version int)
}

// RoastConfig holds orchestration timeouts.
type RoastConfig struct {
	CaptureTimeout  time.Duration
	AnalysisTimeout time.Duration
	// ExecuteTimeout bounds a whole execution; zero disables it.
	ExecuteTimeout time.Duration
}

// RoastService drives roast jobs from submission to a terminal state.
type RoastService struct {
	roasts      RoastStore
	feedback    FeedbackStore
	screenshots Screenshotter
	analyzer    Analyzer
	dispatcher  Submitter
	archive     Archiver
	listeners   []ChangeListener
	cfg         RoastConfig
}

// NewRoastService creates a RoastService.
func NewRoastService(
	roasts RoastStore,
	feedback FeedbackStore,
	screenshots Screenshotter,
	analyzer Analyzer,
	dispatcher Submitter,
	cfg RoastConfig,
) *RoastService {
	return &RoastService{
		roasts:      roasts,
		feedback:    feedback,
		screenshots: screenshots,
		analyzer:    analyzer,
		dispatcher:  dispatcher,
		cfg:         cfg,
	}
}

// SetArchive enables copying captured screenshots into object storage.
func (s *RoastService) SetArchive(a Archiver) {
	s.archive = a
}

// AddListener registers l for change notifications. Not safe to call once
// roasts are being processed.
func (s *RoastService) AddListener(l ChangeListener) {
	s.listeners = append(s.listeners, l)
}

func (s *RoastService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// NormalizeURL trims raw and prefixes https:// when it has no scheme.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return raw, nil
}

// Create records a new roast for targetURL and queues its execution.
// The id is returned as soon as the row exists.
func (s *RoastService) Create(ctx context.Context, targetURL string) (string, error) {
	targetURL = strings.TrimSpace(targetURL)
	if targetURL == "" {
		return "", ErrInvalidURL
	}

	roast := &domain.Roast{
		ID:      uuid.New().String(),
		URL:     targetURL,
		Status:  domain.RoastStatusProcessing,
		Version: 1,
	}
	if err := s.roasts.Create(ctx, roast); err != nil {
		return "", fmt.Errorf("failed to create roast: %w", err)
	}

	ctx = logger.SetRoastID(ctx, roast.ID)
	s.log(ctx).WithField("url", targetURL).Info("Roast created")

	s.dispatch(ctx, roast.ID, targetURL, roast.Version)
	return roast.ID, nil
}

// Retry resets a roast to processing, drops its feedback and queues a new
// execution. Returns ErrNotFound when the roast is missing or has no URL.
func (s *RoastService) Retry(ctx context.Context, id string) error {
	roast, err := s.roasts.ResetForRetry(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRoastNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to reset roast: %w", err)
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldRoastID: id,
		logger.FieldVersion: roast.Version,
	})

	if n, err := s.feedback.DeleteByRoastID(ctx, id); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to delete previous feedback")
	} else {
		logger.With(logger.Fields{logger.FieldCount: n}).Debug(ctx, "Deleted previous feedback")
	}

	s.log(ctx).Info("Roast retry requested")
	s.notify(ctx, id, domain.RoastStatusProcessing, roast.Version)
	s.dispatch(ctx, id, roast.URL, roast.Version)
	return nil
}

// List returns roasts newest first.
func (s *RoastService) List(ctx context.Context, limit, offset int) ([]domain.Roast, error) {
	roasts, err := s.roasts.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list roasts: %w", err)
	}
	return roasts, nil
}

// Delete removes a roast, its feedback and its archived screenshot.
func (s *RoastService) Delete(ctx context.Context, id string) error {
	roast, err := s.roasts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRoastNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get roast: %w", err)
	}

	if err := s.roasts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrRoastNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete roast: %w", err)
	}

	ctx = logger.SetRoastID(ctx, id)
	if s.archive != nil && roast.ScreenshotURL != nil {
		if err := s.archive.Remove(ctx, *roast.ScreenshotURL); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to remove archived screenshot")
		}
	}

	s.log(ctx).Info("Roast deleted")
	s.notify(ctx, id, StatusDeleted, roast.Version)
	return nil
}

// RecoverStale retries roasts left processing for longer than olderThan,
// typically by a previous process that exited mid-execution.
func (s *RoastService) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.roasts.ListStale(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale roasts: %w", err)
	}

	recovered := 0
	for _, roast := range stale {
		if err := s.Retry(ctx, roast.ID); err != nil {
			s.log(ctx).WithField(logger.FieldRoastID, roast.ID).WithError(err).Warn("Failed to recover stale roast")
			continue
		}
		recovered++
	}

	if len(stale) > 0 {
		logger.With(logger.Fields{
			logger.FieldCount: recovered,
			"stale":           len(stale),
		}).Info(ctx, "Recovered stale roasts")
	}
	return recovered, nil
}

// ForceSimulated synchronously replaces a roast's result with a simulated
// critique. Any execution still running for the roast is superseded.
func (s *RoastService) ForceSimulated(ctx context.Context, id string) (*domain.Roast, error) {
	previous, err := s.roasts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRoastNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get roast: %w", err)
	}

	roast, err := s.roasts.ResetForRetry(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRoastNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to reset roast: %w", err)
	}
	version := roast.Version

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldRoastID: id,
		logger.FieldVersion: version,
	})

	if previous.ScreenshotURL != nil {
		if err := s.roasts.SetScreenshot(ctx, id, version, *previous.ScreenshotURL); err != nil {
			return nil, s.storeErr("restore screenshot", err)
		}
	}

	analysis := SimulatedAnalysis()
	if err := s.saveFeedback(ctx, id, version, analysis); err != nil {
		return nil, err
	}

	if err := s.roasts.Complete(ctx, id, version, analysis, time.Now().UTC()); err != nil {
		return nil, s.storeErr("complete roast", err)
	}

	s.log(ctx).Info("Roast replaced with simulated analysis")
	s.notify(ctx, id, domain.RoastStatusCompleted, version)

	updated, err := s.roasts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload roast: %w", err)
	}
	return updated, nil
}

// Execute runs one roast through capture, analysis and persistence.
// Provider failures are replaced by fallbacks; any other error marks the
// roast failed. A superseded execution stops and returns nil.
func (s *RoastService) Execute(ctx context.Context, id, targetURL string, version int) (err error) {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldRoastID:   id,
		logger.FieldVersion:   version,
		logger.FieldComponent: "roast",
	})
	if s.cfg.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExecuteTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log(ctx).WithField("stack", string(debug.Stack())).Errorf("Roast execution panicked: %v", r)
			err = fmt.Errorf("roast execution panicked: %v", r)
		}
		if err == nil {
			return
		}
		if errors.Is(err, ErrStaleExecution) {
			logger.With(logger.Fields{logger.FieldStatus: "superseded"}).
				WithDuration(start).
				Info(ctx, "Roast execution superseded, stopping: %v", err)
			err = nil
			return
		}
		// Cancellation comes from the dispatcher stopping, not from the
		// execution deadline. The roast stays processing for RecoverStale.
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.With(logger.Fields{logger.FieldStatus: "interrupted"}).
				WithDuration(start).
				Warn(ctx, "Roast execution interrupted, leaving it for recovery: %v", err)
			return
		}
		s.markFailed(ctx, id, version, err)
	}()

	// 1. Re-assert processing.
	if err := s.roasts.MarkProcessing(ctx, id, version); err != nil {
		return s.storeErr("mark roast processing", err)
	}

	// 2. Screenshot.
	screenshotRef := s.captureScreenshot(ctx, id, targetURL, version)
	if err := s.roasts.SetScreenshot(ctx, id, version, screenshotRef); err != nil {
		return s.storeErr("store screenshot", err)
	}

	// 3. Analysis.
	analysis := s.analyze(ctx, targetURL, screenshotRef)

	// 4. Feedback rows.
	if err := s.saveFeedback(ctx, id, version, analysis); err != nil {
		if errors.Is(err, ErrStaleExecution) {
			return err
		}
		s.log(ctx).WithError(err).Error("Failed to store feedback, completing without it")
	}

	// 5. Complete.
	if err := s.roasts.Complete(ctx, id, version, analysis, time.Now().UTC()); err != nil {
		return s.storeErr("complete roast", err)
	}

	logger.With(logger.Fields{
		logger.FieldStatus: string(domain.RoastStatusCompleted),
		"score":            analysis.Score,
		"source":           analysis.Source,
	}).WithDuration(start).Info(ctx, "Roast completed")

	// 6. Notify.
	s.notify(ctx, id, domain.RoastStatusCompleted, version)
	return nil
}

func (s *RoastService) captureScreenshot(ctx context.Context, id, targetURL string, version int) string {
	stepCtx, cancel := s.stepContext(ctx, s.cfg.CaptureTimeout)
	defer cancel()
	stepCtx = logger.WithField(stepCtx, logger.FieldStep, "screenshot")

	ref, err := callSafely(func() (string, error) {
		return s.screenshots.Capture(stepCtx, targetURL)
	})
	if err != nil || ref == "" {
		logger.FromContext(stepCtx).WithError(err).Warn("Screenshot capture failed, using placeholder")
		return s.screenshots.Placeholder(targetURL)
	}

	if s.archive != nil && isAbsoluteHTTP(ref) {
		archived, err := callSafely(func() (string, error) {
			return s.archive.Archive(stepCtx, id, version, ref)
		})
		if err != nil {
			logger.FromContext(stepCtx).WithError(err).Warn("Screenshot archive failed, keeping provider URL")
		} else {
			ref = archived
		}
	}
	return ref
}

func (s *RoastService) analyze(ctx context.Context, targetURL, screenshotRef string) *domain.AnalysisResult {
	stepCtx, cancel := s.stepContext(ctx, s.cfg.AnalysisTimeout)
	defer cancel()
	stepCtx = logger.WithField(stepCtx, logger.FieldStep, "analysis")

	start := time.Now()
	result, err := callSafely(func() (*domain.AnalysisResult, error) {
		return s.analyzer.Analyze(stepCtx, targetURL, screenshotRef)
	})
	if err != nil || result == nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.With(nil).WithDuration(start).Warn(stepCtx, "Analysis timed out, using simulated analysis")
		} else {
			logger.FromContext(stepCtx).WithError(err).Warn("Analysis failed, using simulated analysis")
		}
		result = SimulatedAnalysis()
	}
	result.Normalize()
	if result.Source == "" {
		result.Source = domain.AnalysisSourceModel
	}
	return result
}

func (s *RoastService) saveFeedback(ctx context.Context, id string, version int, analysis *domain.AnalysisResult) error {
	items := make([]domain.FeedbackItem, 0, len(analysis.Feedback))
	for _, f := range analysis.Feedback {
		items = append(items, domain.FeedbackItem{
			Category: f.Category,
			Feedback: f.Feedback,
			Severity: f.Severity,
		})
	}

	inserted, itemErrs, err := s.feedback.ReplaceForRoast(ctx, id, version, items)
	if err != nil {
		return s.storeErr("store feedback", err)
	}
	for _, itemErr := range itemErrs {
		s.log(ctx).WithFields(logger.Fields{
			"index":    itemErr.Index,
			"category": itemErr.Category,
		}).WithError(itemErr.Err).Warn("Failed to insert feedback item, skipping")
	}
	logger.With(logger.Fields{logger.FieldCount: inserted}).Debug(ctx, "Stored feedback items")
	return nil
}

// markFailed records a failed execution. ctx may already be expired, so the
// write runs on a fresh deadline.
func (s *RoastService) markFailed(ctx context.Context, id string, version int, cause error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	s.log(ctx).WithError(cause).Error("Roast execution failed")

	if err := s.roasts.Fail(writeCtx, id, version, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrRoastNotFound) {
			s.log(ctx).Info("Roast superseded before failure could be recorded")
			return
		}
		s.log(ctx).WithError(err).Error("Failed to mark roast failed")
	}
	s.notify(writeCtx, id, domain.RoastStatusFailed, version)
}

func (s *RoastService) dispatch(ctx context.Context, id, targetURL string, version int) {
	fields := logger.Fields{
		logger.FieldRoastID: id,
		logger.FieldVersion: version,
	}
	if rid := logger.GetRequestID(ctx); rid != "" {
		fields[logger.FieldRequestID] = rid
	}

	err := s.dispatcher.Submit("roast.execute", fields, func(taskCtx context.Context) error {
		return s.Execute(taskCtx, id, targetURL, version)
	})
	if err != nil {
		// Nothing will ever pick the job up, so it must not stay processing.
		s.markFailed(ctx, id, version, fmt.Errorf("failed to queue roast execution: %w", err))
	}
}

func (s *RoastService) notify(ctx context.Context, id string, status domain.RoastStatus, version int) {
	for _, l := range s.listeners {
		l.RoastChanged(ctx, id, status, version)
	}
}

func (s *RoastService) stepContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeErr maps repository errors raised during an execution.
func (s *RoastService) storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrRoastNotFound) {
		return fmt.Errorf("%s: %w", op, ErrStaleExecution)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// callSafely turns a panic in an external adapter into an error.
func callSafely[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()
	return fn()
}
