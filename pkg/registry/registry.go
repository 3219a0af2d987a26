// Package registry keeps named sketch streams in memory. Each stream owns one
// sketch built from a Spec; observations and queries on a stream are
// serialized by the stream's lock while different streams proceed in
// parallel. Registrations (never sketch state) are written through to a Store.
package registry

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sahithikokkula/streamsketch/pkg/logger"
	"github.com/sahithikokkula/streamsketch/pkg/metrics"
	"github.com/sahithikokkula/streamsketch/pkg/sketches"
	"github.com/sahithikokkula/streamsketch/pkg/storage"
)

// MaxFootprint bounds the memory one stream's sketch may grow to.
const MaxFootprint = 64 << 20

var (
	ErrNotFound = errors.New("stream not found")
	ErrExists   = errors.New("stream already exists")
	ErrBadValue = errors.New("bad value")
)

// Store persists stream registrations. storage.Meta implements it.
type Store interface {
	UpsertStream(ctx context.Context, rec storage.StreamRecord) error
	DeleteStream(ctx context.Context, name string) error
	ListStreams(ctx context.Context) ([]storage.StreamRecord, error)
	IncrementObserved(ctx context.Context, name string, n int64) error
}

// Info describes a registered stream.
type Info struct {
	Name       string              `json:"name"`
	Kind       sketches.SketchType `json:"kind"`
	Params     Params              `json:"params"`
	Observed   uint64              `json:"observed"`
	ApproxSize string              `json:"approx_size"`
	CreatedAt  time.Time           `json:"created_at"`
}

type stream struct {
	mu       sync.Mutex
	spec     Spec
	numeric  bool
	sketch   sketch
	observed uint64
	created  time.Time
}

func (s *stream) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Name:       s.spec.Name,
		Kind:       s.spec.Kind,
		Params:     s.spec.Params,
		Observed:   s.observed,
		ApproxSize: humanize.IBytes(uint64(s.sketch.footprint())),
		CreatedAt:  s.created,
	}
}

// Registry holds the live streams.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*stream
	store   Store
}

// New returns an empty registry. A nil store keeps registrations in memory
// only.
func New(store Store) *Registry {
	return &Registry{streams: make(map[string]*stream), store: store}
}

func build(spec Spec) (*stream, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	k := kinds[spec.Kind]
	spec.Params = spec.Params.withDefaults(k.defaults)
	if size := k.size(spec.Params); size > MaxFootprint {
		return nil, errors.Wrapf(ErrBadValue, "%s stream %s needs up to %s, limit is %s",
			spec.Kind, spec.Name, humanize.IBytes(size), humanize.IBytes(MaxFootprint))
	}
	sk, err := k.build(spec.Params)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s stream %s", spec.Kind, spec.Name)
	}
	return &stream{spec: spec, numeric: k.numeric, sketch: sk, created: time.Now()}, nil
}

// Restore re-creates every stream of the store with an empty sketch. Records
// that no longer build are logged and skipped. It returns the number of
// restored streams.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	records, err := r.store.ListStreams(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "restore streams")
	}

	log := logger.WithContext(ctx)
	restored := 0
	for _, rec := range records {
		spec := Spec{Name: rec.Name, Kind: sketches.SketchType(rec.Kind)}
		if err := json.Unmarshal([]byte(rec.Params), &spec.Params); err != nil {
			log.Warn("skipping stream with unreadable params", zap.String("stream", rec.Name), zap.Error(err))
			continue
		}
		s, err := build(spec)
		if err != nil {
			log.Warn("skipping stream that no longer builds", zap.String("stream", rec.Name), zap.Error(err))
			continue
		}
		s.created = rec.CreatedAt
		// the sketch restarts empty, so does its count
		rec.Observed = 0
		if err := r.store.UpsertStream(ctx, rec); err != nil {
			return restored, err
		}

		r.mu.Lock()
		r.streams[rec.Name] = s
		r.mu.Unlock()
		restored++
	}
	metrics.Streams.Set(float64(r.Len()))
	log.Info("streams restored", zap.Int("count", restored))
	return restored, nil
}

// Create registers a new stream.
func (r *Registry) Create(ctx context.Context, spec Spec) (Info, error) {
	s, err := build(spec)
	if err != nil {
		return Info{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[spec.Name]; ok {
		return Info{}, errors.Wrap(ErrExists, spec.Name)
	}
	if r.store != nil {
		params, err := json.Marshal(s.spec.Params)
		if err != nil {
			return Info{}, errors.Wrap(err, "encode params")
		}
		rec := storage.StreamRecord{Name: spec.Name, Kind: string(spec.Kind), Params: string(params), CreatedAt: s.created}
		if err := r.store.UpsertStream(ctx, rec); err != nil {
			return Info{}, err
		}
	}
	r.streams[spec.Name] = s
	metrics.Streams.Set(float64(len(r.streams)))

	logger.WithContext(logger.WithStream(ctx, spec.Name)).Info("stream created",
		zap.String("kind", string(spec.Kind)),
		zap.String("approx_size", humanize.IBytes(uint64(s.sketch.footprint()))))
	return s.info(), nil
}

// Ensure creates spec unless a stream of that name and kind already exists.
// A stream of the same name but another kind is an ErrExists.
func (r *Registry) Ensure(ctx context.Context, spec Spec) (Info, error) {
	if info, err := r.Get(spec.Name); err == nil {
		if info.Kind != spec.Kind {
			return Info{}, errors.Wrapf(ErrExists, "%s is a %s stream", spec.Name, info.Kind)
		}
		return info, nil
	}
	return r.Create(ctx, spec)
}

func (r *Registry) lookup(name string) (*stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return s, nil
}

// Get describes the named stream.
func (r *Registry) Get(name string) (Info, error) {
	s, err := r.lookup(name)
	if err != nil {
		return Info{}, err
	}
	return s.info(), nil
}

// List describes every stream in name order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	all := make([]*stream, 0, len(r.streams))
	for _, s := range r.streams {
		all = append(all, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, len(all))
	for i, s := range all {
		infos[i] = s.info()
	}
	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// Len returns the number of streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Delete drops the named stream and its registration.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[name]
	if !ok {
		return errors.Wrap(ErrNotFound, name)
	}
	if r.store != nil {
		if err := r.store.DeleteStream(ctx, name); err != nil && errors.Cause(err) != storage.ErrNoStream {
			return err
		}
	}
	delete(r.streams, name)
	metrics.Streams.Set(float64(len(r.streams)))
	metrics.ForgetStream(name, string(s.spec.Kind))

	logger.WithContext(logger.WithStream(ctx, name)).Info("stream deleted")
	return nil
}

// Observe folds values into the named stream and returns the stream's new
// observed count. Values are validated first: if any is unusable for the
// stream's kind, none is applied and the error wraps ErrBadValue. A stream
// deleted while the values are applied reports ErrNotFound.
func (r *Registry) Observe(ctx context.Context, name string, values []any) (uint64, error) {
	s, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	parsed, err := parseValues(values, s.numeric)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	for _, v := range parsed {
		s.sketch.process(v)
	}
	s.observed += uint64(len(parsed))
	observed := s.observed
	s.mu.Unlock()

	err = r.whileRegistered(name, s, func() {
		metrics.Observations.WithLabelValues(name, string(s.spec.Kind)).Add(float64(len(parsed)))
		if r.store != nil && len(parsed) > 0 {
			if err := r.store.IncrementObserved(ctx, name, int64(len(parsed))); err != nil {
				// the sketch already holds the values; only the stored count lags
				logger.WithContext(logger.WithStream(ctx, name)).Warn("failed to record observed count", zap.Error(err))
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return observed, nil
}

// whileRegistered runs fn with s still registered as name. Delete cannot run
// concurrently with fn, so fn never touches the metrics series or stored row
// of a deleted stream.
func (r *Registry) whileRegistered(name string, s *stream, fn func()) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.streams[name] != s {
		return errors.Wrap(ErrNotFound, name)
	}
	fn()
	return nil
}

// Query asks the named stream about arg. arg is nil for kinds that take no
// argument (counters, cardinality, heavy-hitter listing).
func (r *Registry) Query(ctx context.Context, name string, arg any) (sketches.EstimateResult, error) {
	s, err := r.lookup(name)
	if err != nil {
		return sketches.EstimateResult{}, err
	}

	var argp *value
	if arg != nil {
		v, err := parseValue(arg)
		if err != nil {
			return sketches.EstimateResult{}, err
		}
		argp = &v
	}

	s.mu.Lock()
	res, err := s.sketch.query(argp, s.observed)
	s.mu.Unlock()
	if err != nil {
		return res, errors.Wrap(err, name)
	}
	res.SketchType = string(s.spec.Kind)

	err = r.whileRegistered(name, s, func() {
		metrics.Queries.WithLabelValues(name, string(s.spec.Kind)).Inc()
	})
	if err != nil {
		return sketches.EstimateResult{}, err
	}
	logger.WithContext(logger.WithStream(ctx, name)).Debug("stream queried", zap.Any("estimate", res.Estimate))
	return res, nil
}
