// Package orchestrator runs one inference request per region and writes the
// answers back into the Region Set.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/region-console/pkg/cache"
	"github.com/menta2k/region-console/pkg/client"
	"github.com/menta2k/region-console/pkg/coords"
	"github.com/menta2k/region-console/pkg/cropper"
	"github.com/menta2k/region-console/pkg/processing"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/types"
)

// DefaultPrompt is sent when the user leaves the prompt empty.
const DefaultPrompt = "What action should be taken?"

// Params are the user's choices for a run.
type Params struct {
	Prompt string
	Mode   types.Mode
	// Expert is used in expert mode; without it the run is auto-routed.
	Expert *int
	// SegmentBox is an optional box prompt in source RU for segment mode.
	SegmentBox *types.BoundingBox
}

// request builds the wire request for one image payload. crop is the
// region's box, nil for the whole image.
func (p Params) request(image string, crop *types.BoundingBox) types.InferenceRequest {
	req := types.InferenceRequest{ImageB64: image, Prompt: p.Prompt}
	if req.Prompt == "" {
		req.Prompt = DefaultPrompt
	}
	switch p.Mode {
	case types.ModeOCR:
		req.Adapter = string(types.ModeOCR)
	case types.ModeSegment:
		req.Adapter = string(types.ModeSegment)
		req.Box = segmentPrompt(p.SegmentBox, crop)
	case types.ModeExpert:
		if p.Expert != nil {
			e := *p.Expert
			req.Expert = &e
		}
	}
	return req
}

// segmentPrompt moves a source box prompt into the crop's RU space. A
// prompt that misses the crop is dropped.
func segmentPrompt(box, crop *types.BoundingBox) *types.BoundingBox {
	if box == nil {
		return nil
	}
	b := *box
	if crop != nil {
		b = coords.ClampBox(coords.MapBoxSourceToCrop(b, *crop))
	}
	if !b.Valid() {
		return nil
	}
	return &b
}

// RegionOutcome describes what happened to one target.
type RegionOutcome struct {
	Index int
	Box   *types.BoundingBox
	Sent  types.Size
	// Fallback is set when the crop failed and the full image was sent.
	Fallback bool
	Cached   bool
	Stored   bool
	// Superseded is set when the result arrived after a newer run began.
	Superseded bool
	// Discarded is set when the region was edited or cleared while its
	// request was in flight.
	Discarded bool
	Err       error
}

// Outcome is the aggregate result of a run.
type Outcome struct {
	RunID      string
	Generation uint64
	Regions    []RegionOutcome
	// Populated reports whether any region holds a response after the run.
	Populated bool
	// Err is the first error of the run: a configuration error, a failed
	// request, or an error reported inside a backend result.
	Err error
	// Superseded is set when the Region Set moved on to a newer run or was
	// cleared while this one was in flight.
	Superseded bool
	Duration   time.Duration
}

// ErrorMessage returns Err as text, empty when the run succeeded.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// Orchestrator sequences crops and backend calls.
type Orchestrator struct {
	client  client.InferenceClient
	cropper *cropper.Cropper
	cache   cache.Cache
	locker  sync.Locker
	logger  *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache reuses results for identical requests.
func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithLocker guards every Region Set access with l. The lock is released
// while requests are in flight so the regions stay editable.
func WithLocker(l sync.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// New creates an orchestrator.
func New(c client.InferenceClient, cr *cropper.Cropper, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cr == nil {
		cr = cropper.New(logger)
	}
	o := &Orchestrator{
		client:  c,
		cropper: cr,
		locker:  noopLocker{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run sends every region with a box, or the whole image when none has one,
// in index order. Each result is stored as soon as it arrives. The run
// stops at the first failed request; results stored before it remain.
// A result for a region edited during its request is dropped and the run
// moves on to the next region.
func (o *Orchestrator) Run(ctx context.Context, src *processing.Source, set *regions.Set, params Params) Outcome {
	start := time.Now()
	out := Outcome{RunID: uuid.NewString()}
	logger := o.logger.With(zap.String("run_id", out.RunID))

	probe := params.request("", nil)
	if err := o.client.Validate(probe.Mode()); err != nil {
		logger.Warn("run rejected", zap.String("mode", string(probe.Mode())), zap.Error(err))
		out.Err = err
		o.locker.Lock()
		out.Populated = set.Populated()
		o.locker.Unlock()
		return out
	}

	o.locker.Lock()
	gen := set.BeginRun()
	targets := set.Targets()
	o.locker.Unlock()
	out.Generation = gen

	logger.Info("run started",
		zap.Uint64("generation", gen),
		zap.Int("targets", len(targets)),
		zap.String("mode", string(probe.Mode())))

	for _, target := range targets {
		ro := o.runTarget(ctx, logger, src, set, gen, target, params)
		out.Regions = append(out.Regions, ro)
		if ro.Err != nil && out.Err == nil {
			out.Err = ro.Err
		}
		if ro.Superseded {
			out.Superseded = true
		}
		if !ro.Stored && !ro.Discarded {
			break
		}
	}

	o.locker.Lock()
	out.Populated = set.Populated()
	o.locker.Unlock()
	out.Duration = time.Since(start)

	logger.Info("run finished",
		zap.Bool("populated", out.Populated),
		zap.Duration("duration", out.Duration),
		zap.NamedError("first_error", out.Err))
	return out
}

func (o *Orchestrator) runTarget(ctx context.Context, logger *zap.Logger, src *processing.Source, set *regions.Set, gen uint64, target regions.Target, params Params) RegionOutcome {
	ro := RegionOutcome{Index: target.Index, Box: target.Box}
	logger = logger.With(zap.Int("region", target.Index))

	crop := o.cropper.Crop(src, target.Box)
	ro.Sent = crop.Size
	ro.Fallback = crop.Fallback
	req := params.request(crop.Payload, target.Box)

	res, cached := o.cached(ctx, logger, req)
	if res == nil {
		var err error
		reqStart := time.Now()
		res, err = o.client.Infer(ctx, req)
		if err != nil {
			logger.Error("region request failed", zap.Error(err))
			ro.Err = err
			return ro
		}
		logger.Debug("region answered", zap.Duration("latency", time.Since(reqStart)))
		o.store(ctx, logger, req, res)
	}
	ro.Cached = cached

	o.locker.Lock()
	status := set.StoreResult(gen, target, res, crop.Size)
	o.locker.Unlock()
	switch status {
	case regions.Stored:
		ro.Stored = true
	case regions.StaleRun:
		ro.Superseded = true
		logger.Info("result dropped, run superseded", zap.Uint64("generation", gen))
		return ro
	case regions.StaleRegion:
		ro.Discarded = true
		logger.Info("result dropped, region edited during request")
		return ro
	}

	if msg, ok := res.ErrorMessage(); ok {
		logger.Warn("backend reported error", zap.String("error", msg))
		ro.Err = &BackendError{Region: target.Index, Message: msg}
	}
	return ro
}

func (o *Orchestrator) cached(ctx context.Context, logger *zap.Logger, req types.InferenceRequest) (*types.InferenceResult, bool) {
	if o.cache == nil {
		return nil, false
	}
	key, err := cache.Key(req)
	if err != nil {
		return nil, false
	}
	res, err := o.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache lookup failed", zap.Error(err))
		return nil, false
	}
	return res, res != nil
}

func (o *Orchestrator) store(ctx context.Context, logger *zap.Logger, req types.InferenceRequest, res *types.InferenceResult) {
	if o.cache == nil {
		return
	}
	if _, failed := res.ErrorMessage(); failed {
		return
	}
	key, err := cache.Key(req)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, key, res); err != nil {
		logger.Warn("cache store failed", zap.Error(err))
	}
}

// BackendError is an error the backend reported inside a result body.
type BackendError struct {
	Region  int
	Message string
}

func (e *BackendError) Error() string { return e.Message }
