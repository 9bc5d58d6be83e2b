// Package predictor owns the loaded model for each prediction flow and
// guarantees a numeric answer for every valid feature vector.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"seedcar/db"
	"seedcar/ml"
	"seedcar/monitoring"
)

const (
	noteNoModel     = "no trained model available; using fallback estimate"
	noteModelFailed = "model prediction failed; using fallback estimate"
)

// Recorder persists served predictions.
type Recorder interface {
	SavePrediction(record db.PredictionRecord) error
}

// Publisher fans prediction events out to live subscribers.
type Publisher interface {
	Publish(msgType monitoring.MessageType, topic string, data interface{})
}

type Options struct {
	Kind       ml.Kind
	Candidates []string
	Fallback   ml.Model
	CacheSize  int
	// RetryInterval bounds how often a missing model is reloaded lazily.
	RetryInterval time.Duration
	Logger        *zap.Logger
	Metrics       *monitoring.Metrics
	Recorder      Recorder
	Publisher     Publisher
}

// Status is a point-in-time view of a service for health and debug output.
type Status struct {
	Kind         ml.Kind          `json:"kind"`
	ModelLoaded  bool             `json:"model_loaded"`
	Model        string           `json:"model,omitempty"`
	Version      string           `json:"version,omitempty"`
	Path         string           `json:"path,omitempty"`
	LoadedAt     time.Time        `json:"loaded_at,omitempty"`
	Fallback     string           `json:"fallback"`
	Reloads      int              `json:"reloads"`
	Candidates   []string         `json:"candidates"`
	LastAttempts []ml.LoadAttempt `json:"last_attempts"`
	CacheEntries int              `json:"cache_entries"`
}

type loadedModel struct {
	model ml.Model
	path  string
	at    time.Time
}

type Service struct {
	opts    Options
	current atomic.Pointer[loadedModel]
	cache   *lru.Cache[string, ml.Result]

	// loadMu serializes artifact loads so concurrent requests that find no
	// model trigger at most one reload per RetryInterval.
	loadMu      sync.Mutex
	lastAttempt time.Time

	statusMu sync.RWMutex
	attempts []ml.LoadAttempt
	reloads  int
}

// New builds the service and performs the startup load. A missing artifact
// is not an error: the service answers with its fallback until one appears.
func New(opts Options) (*Service, error) {
	if opts.Kind == "" {
		return nil, errors.New("predictor kind is required")
	}
	if opts.Fallback == nil {
		return nil, fmt.Errorf("predictor %s: fallback model is required", opts.Kind)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Logger = opts.Logger.With(zap.String("model_kind", string(opts.Kind)))
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 10 * time.Second
	}

	cache, err := lru.New[string, ml.Result](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	s := &Service{opts: opts, cache: cache}
	s.Reload()
	return s, nil
}

func (s *Service) Kind() ml.Kind { return s.opts.Kind }

// Reload reads the artifact again regardless of the retry interval and
// reports whether a model is active afterwards. A failed reload keeps the
// previously loaded model.
func (s *Service) Reload() bool {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.loadLocked()
}

func (s *Service) loadLocked() bool {
	s.lastAttempt = time.Now()
	model, path, attempts := ml.LoadFirst(s.opts.Candidates, s.opts.Logger)

	s.statusMu.Lock()
	s.attempts = attempts
	s.reloads++
	s.statusMu.Unlock()

	if model == nil {
		active := s.current.Load() != nil
		s.opts.Metrics.ObserveLoad(string(s.opts.Kind), false, active)
		return active
	}

	s.current.Store(&loadedModel{model: model, path: path, at: time.Now()})
	s.cache.Purge()
	s.opts.Metrics.ObserveLoad(string(s.opts.Kind), true, true)
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(monitoring.ModelEvent, string(s.opts.Kind), map[string]string{
			"model":   model.Name(),
			"version": model.Version(),
			"path":    path,
		})
	}
	return true
}

// model returns the active model, lazily retrying the load when none is
// active and the retry interval has passed.
func (s *Service) model() *loadedModel {
	if current := s.current.Load(); current != nil {
		return current
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if current := s.current.Load(); current != nil {
		return current
	}
	if time.Since(s.lastAttempt) >= s.opts.RetryInterval {
		s.opts.Logger.Info("model missing, retrying load")
		s.loadLocked()
	}
	return s.current.Load()
}

// Predict never fails: model errors and a missing model both produce the
// fallback estimate with Fallback set.
func (s *Service) Predict(ctx context.Context, fv ml.FeatureVector) ml.Result {
	result := s.predict(ctx, fv)
	s.opts.Metrics.ObservePrediction(string(s.opts.Kind), result.Fallback)
	s.record(ctx, fv, result)
	return result
}

func (s *Service) predict(ctx context.Context, fv ml.FeatureVector) ml.Result {
	current := s.model()
	if current == nil {
		return s.fallback(ctx, fv, noteNoModel)
	}

	key := current.model.Version() + "#" + fv.Key()
	if cached, ok := s.cache.Get(key); ok {
		s.opts.Metrics.ObserveCache(string(s.opts.Kind), true)
		return cached
	}
	s.opts.Metrics.ObserveCache(string(s.opts.Kind), false)

	if fv.Kind != s.opts.Kind {
		s.opts.Logger.Error("feature vector routed to wrong model", zap.String("vector_kind", string(fv.Kind)))
		return s.fallback(ctx, fv, noteModelFailed)
	}

	result, err := current.model.Predict(ctx, fv)
	if err != nil {
		s.opts.Logger.Warn("model prediction failed",
			zap.String("model", current.model.Name()),
			zap.String("version", current.model.Version()),
			zap.Error(err))
		return s.fallback(ctx, fv, noteModelFailed)
	}
	s.cache.Add(key, result)
	return result
}

func (s *Service) fallback(ctx context.Context, fv ml.FeatureVector, note string) ml.Result {
	result, err := s.opts.Fallback.Predict(context.WithoutCancel(ctx), fv)
	if err != nil {
		s.opts.Logger.Error("fallback prediction failed", zap.Error(err))
		result = ml.Result{Model: s.opts.Fallback.Name(), Version: s.opts.Fallback.Version()}
	}
	result.Fallback = true
	result.Note = note
	return result
}

func (s *Service) record(ctx context.Context, fv ml.FeatureVector, result ml.Result) {
	event := map[string]interface{}{
		"request_id": RequestID(ctx),
		"features":   fv.Map(),
		"result":     result,
	}
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(monitoring.PredictionEvent, string(s.opts.Kind), event)
	}
	if s.opts.Recorder == nil {
		return
	}
	err := s.opts.Recorder.SavePrediction(db.PredictionRecord{
		RequestID:  RequestID(ctx),
		Kind:       string(s.opts.Kind),
		Features:   fv.Map(),
		Value:      result.Value,
		Confidence: result.Confidence,
		Fallback:   result.Fallback,
		Model:      result.Model,
		Version:    result.Version,
	})
	if err != nil {
		s.opts.Logger.Warn("failed to record prediction", zap.Error(err))
	}
}

// Status reports the current model and the last load attempts.
func (s *Service) Status() Status {
	st := Status{
		Kind:         s.opts.Kind,
		Fallback:     s.opts.Fallback.Name(),
		Candidates:   s.opts.Candidates,
		CacheEntries: s.cache.Len(),
	}
	if current := s.current.Load(); current != nil {
		st.ModelLoaded = true
		st.Model = current.model.Name()
		st.Version = current.model.Version()
		st.Path = current.path
		st.LoadedAt = current.at
	}
	s.statusMu.RLock()
	st.Reloads = s.reloads
	st.LastAttempts = append([]ml.LoadAttempt(nil), s.attempts...)
	s.statusMu.RUnlock()
	return st
}

// Registry holds one service per prediction flow.
type Registry struct {
	services map[ml.Kind]*Service
}

func NewRegistry(services ...*Service) *Registry {
	r := &Registry{services: make(map[ml.Kind]*Service, len(services))}
	for _, s := range services {
		r.services[s.Kind()] = s
	}
	return r
}

func (r *Registry) Get(kind ml.Kind) (*Service, bool) {
	s, ok := r.services[kind]
	return s, ok
}

// Services returns the services ordered by kind.
func (r *Registry) Services() []*Service {
	out := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

// ReloadAll forces a reload of every service.
func (r *Registry) ReloadAll() map[ml.Kind]bool {
	out := make(map[ml.Kind]bool, len(r.services))
	for kind, s := range r.services {
		out[kind] = s.Reload()
	}
	return out
}

type requestIDKey struct{}

// WithRequestID tags ctx so recorded predictions can be traced to a request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
