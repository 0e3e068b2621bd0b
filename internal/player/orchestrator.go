package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
)

const (
	// DefaultDebounce is the trailing window that collapses repeated end-of-track signals.
	DefaultDebounce = time.Second
	// DefaultVolumeDebounce is the trailing window for volume changes.
	DefaultVolumeDebounce = 300 * time.Millisecond

	defaultTimeout = 30 * time.Second
	updateBuffer   = 64
)

// Fetcher returns the next recommended track for a seed set. A nil track means no recommendation.
type Fetcher interface {
	FetchNext(ctx context.Context, seeds []string) (*models.Track, error)
}

// Controls sends playback commands to a device.
type Controls interface {
	Play(ctx context.Context, deviceID string, uris []string) error
	Pause(ctx context.Context, deviceID string) error
	SetVolume(ctx context.Context, deviceID string, percent int) error
}

// Options configures an [Orchestrator].
type Options struct {
	Fetcher        Fetcher
	Controls       Controls
	Seeds          *SeedSet // shared with whatever edits the seeds; created when nil
	Liked          *LikedSet
	Clock          shared.Clock
	Logger         *log.Logger
	Debounce       time.Duration
	VolumeDebounce time.Duration
	AutoAdvance    bool          // like also skips to the next recommendation
	Timeout        time.Duration // bound for calls made from timers
}

// Orchestrator drives continuous recommendation playback on one bound device.
//
// Player events, user commands and timers may call in from different goroutines. State lives behind a mutex
// and network calls are made outside of it. Every recommendation request takes a new generation; a result
// whose generation is no longer current is dropped, so the last request wins.
type Orchestrator struct {
	fetcher     Fetcher
	controls    Controls
	seeds       *SeedSet
	liked       *LikedSet
	logger      *log.Logger
	debounce    time.Duration
	volumeDelay time.Duration
	timeout     time.Duration
	advance     *shared.Deferred
	volume      *shared.Deferred
	updates     chan Update
	ctx         context.Context
	cancel      context.CancelFunc

	mu          sync.Mutex
	state       State
	device      string
	track       *models.Track
	lastURI     string
	generation  uint64
	autoAdvance bool
	sub         Subscription
	closed      bool
}

// New creates an idle [Orchestrator].
func New(opts Options) (*Orchestrator, error) {
	if opts.Fetcher == nil || opts.Controls == nil {
		return nil, fmt.Errorf("%w: fetcher and controls are required", shared.ErrInvalidConfig)
	}
	if opts.Seeds == nil {
		opts.Seeds = NewSeedSet()
	}
	if opts.Liked == nil {
		opts.Liked = NewLikedSet()
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.VolumeDebounce <= 0 {
		opts.VolumeDebounce = DefaultVolumeDebounce
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		fetcher:     opts.Fetcher,
		controls:    opts.Controls,
		seeds:       opts.Seeds,
		liked:       opts.Liked,
		logger:      shared.WithLogger(opts.Logger, "component", "player"),
		debounce:    opts.Debounce,
		volumeDelay: opts.VolumeDebounce,
		timeout:     opts.Timeout,
		advance:     shared.NewDeferred(opts.Clock),
		volume:      shared.NewDeferred(opts.Clock),
		updates:     make(chan Update, updateBuffer),
		ctx:         ctx,
		cancel:      cancel,
		autoAdvance: opts.AutoAdvance,
	}, nil
}

// Attach subscribes to feed, replacing any earlier subscription.
func (o *Orchestrator) Attach(feed Feed) {
	sub := feed.Subscribe(o.HandleEvent)

	o.mu.Lock()
	prev := o.sub
	o.sub = sub
	o.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// HandleEvent applies one player event.
func (o *Orchestrator) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventReady:
		o.bind(ev.DeviceID)
	case EventStateChanged:
		o.observe(ev.Snapshot)
	}
}

// Start begins playback from the seed set. Fails without seeds or a bound device.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.seeds.Len() == 0 {
		return o.notify(shared.ErrMissingSeeds)
	}
	if o.Device() == "" {
		return o.notify(shared.ErrDeviceUnavailable)
	}

	o.advance.Cancel()
	return o.recommend(ctx)
}

// Play resumes playback on the bound device, optimistically showing Playing.
func (o *Orchestrator) Play(ctx context.Context) error {
	return o.command(Playing, func(device string) error {
		return o.controls.Play(ctx, device, nil)
	})
}

// Pause pauses the bound device, optimistically showing Paused.
func (o *Orchestrator) Pause(ctx context.Context) error {
	return o.command(Paused, func(device string) error {
		return o.controls.Pause(ctx, device)
	})
}

// Toggle pauses when playing and resumes otherwise.
func (o *Orchestrator) Toggle(ctx context.Context) error {
	if o.State() == Playing {
		return o.Pause(ctx)
	}
	return o.Play(ctx)
}

// Skip pauses and plays the next recommendation. With no seeds it pauses and goes idle.
func (o *Orchestrator) Skip(ctx context.Context) error {
	device := o.Device()
	if device == "" {
		return o.notify(shared.ErrDeviceUnavailable)
	}

	o.advance.Cancel()
	if err := o.controls.Pause(ctx, device); err != nil {
		// a player at rest rejects pause; the recommendation path still applies
		o.logger.Warn("pause before skip failed", "error", err)
	}

	o.mu.Lock()
	if o.state == Playing {
		o.state = Paused
	}
	o.mu.Unlock()

	return o.recommend(ctx)
}

// Like adds the current track to the liked set and reports whether it was new.
//
// With auto-advance enabled the orchestrator then skips, whether or not the track was already liked.
func (o *Orchestrator) Like(ctx context.Context) (bool, error) {
	o.mu.Lock()
	track, auto := o.track, o.autoAdvance
	o.mu.Unlock()

	if track == nil {
		return false, nil
	}

	added := o.liked.Add(*track)
	if added {
		o.emit(Update{Notice: fmt.Sprintf("Liked %s", track.Name)})
	}

	if auto {
		return added, o.Skip(ctx)
	}
	return added, nil
}

// Unlike drops the current track from the liked set. Reports whether it was liked.
func (o *Orchestrator) Unlike() bool {
	track := o.Track()
	if track == nil {
		return false
	}

	removed := o.liked.Remove(track.ID)
	if removed {
		o.emit(Update{Notice: fmt.Sprintf("Unliked %s", track.Name)})
	}
	return removed
}

// SetVolume sets the bound device's volume after a short quiet period; only the last value in a burst is sent.
//
// The device check happens immediately.
func (o *Orchestrator) SetVolume(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d out of range", shared.ErrInvalidInput, percent)
	}
	if o.Device() == "" {
		return o.notify(shared.ErrDeviceUnavailable)
	}

	o.volume.Schedule(o.volumeDelay, func() {
		ctx, cancel := context.WithTimeout(o.ctx, o.timeout)
		defer cancel()

		if err := o.controls.SetVolume(ctx, o.Device(), percent); err != nil {
			o.fail(err)
		}
	})
	return nil
}

// SetAutoAdvance toggles skipping after a like.
func (o *Orchestrator) SetAutoAdvance(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autoAdvance = on
}

func (o *Orchestrator) AutoAdvance() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoAdvance
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Track returns the displayed track, nil when none.
func (o *Orchestrator) Track() *models.Track {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.track
}

// Device returns the bound device id, empty before readiness.
func (o *Orchestrator) Device() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.device
}

func (o *Orchestrator) Seeds() *SeedSet { return o.seeds }

func (o *Orchestrator) Liked() *LikedSet { return o.liked }

// Updates returns the channel state changes are sent on. Sends never block; a slow reader misses updates.
func (o *Orchestrator) Updates() <-chan Update {
	return o.updates
}

// Close drops pending timers, unsubscribes from the feed and stops emitting updates.
func (o *Orchestrator) Close() {
	o.advance.Cancel()
	o.volume.Cancel()
	o.cancel()

	o.mu.Lock()
	sub := o.sub
	o.sub = nil
	o.closed = true
	o.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// bind records the latest ready device.
func (o *Orchestrator) bind(deviceID string) {
	if deviceID == "" {
		return
	}

	o.mu.Lock()
	changed := o.device != deviceID
	o.device = deviceID
	o.mu.Unlock()

	if changed {
		o.logger.Info("device ready", "device", deviceID)
		o.emit(Update{})
	}
}

// observe classifies a snapshot as track-ended, track-changed or neither, in that order.
//
// Track-ended only counts while Playing or Paused.
func (o *Orchestrator) observe(s models.PlaybackSnapshot) {
	uri := s.TrackURI()

	o.mu.Lock()
	if s.Ended() {
		o.lastURI = uri
		if o.state == Idle || o.state == Awaiting {
			// nothing started here has ended: the resting snapshot of an earlier session, or a
			// duplicate while a recommendation is already on its way
			o.mu.Unlock()
			o.emit(Update{Snapshot: &s})
			return
		}
		if o.seeds.Len() == 0 {
			o.state = Idle
			o.track = nil
			o.generation++
			o.mu.Unlock()

			o.advance.Cancel()
			o.emit(Update{Snapshot: &s})
			return
		}
		o.mu.Unlock()

		o.advance.Schedule(o.debounce, o.advanceInBackground)
		return
	}

	if uri != o.lastURI {
		o.lastURI = uri
	}

	if s.Track != nil {
		o.track = s.Track
	}
	switch {
	case s.Loading:
	case !s.Paused && s.Track != nil:
		o.state = Playing
	case s.Paused && o.state == Playing:
		o.state = Paused
	}
	o.mu.Unlock()

	o.emit(Update{Snapshot: &s})
}

func (o *Orchestrator) advanceInBackground() {
	ctx, cancel := context.WithTimeout(o.ctx, o.timeout)
	defer cancel()

	if err := o.recommend(ctx); err != nil {
		o.logger.Debug("recommendation path failed", "error", err)
	}
}

// recommend fetches one recommendation for the current seeds and plays it on the bound device.
//
// The seed set and device are read at dispatch time. On failure the state held before the call is restored.
func (o *Orchestrator) recommend(ctx context.Context) error {
	seeds := o.seeds.IDs()

	o.mu.Lock()
	if len(seeds) == 0 {
		o.state = Idle
		o.track = nil
		o.generation++
		o.mu.Unlock()

		o.emit(Update{})
		return nil
	}
	if o.device == "" {
		o.mu.Unlock()
		return o.notify(shared.ErrDeviceUnavailable)
	}

	prev := o.state
	o.generation++
	gen := o.generation
	o.state = Awaiting
	o.mu.Unlock()
	o.emit(Update{})

	track, err := o.fetcher.FetchNext(ctx, seeds)
	if err == nil && track == nil {
		err = shared.ErrNoRecommendation
	}

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		o.logger.Debug("dropping superseded recommendation", "generation", gen)
		return nil
	}
	if err != nil {
		o.state = prev
		o.mu.Unlock()
		return o.fail(err)
	}
	device := o.device
	o.mu.Unlock()

	if err := o.controls.Play(ctx, device, []string{track.URI}); err != nil {
		o.mu.Lock()
		if gen == o.generation {
			o.state = prev
		}
		o.mu.Unlock()
		return o.fail(err)
	}

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return nil
	}
	o.state = Playing
	o.track = track
	o.lastURI = track.URI
	o.mu.Unlock()

	o.logger.Info("playing recommendation", "track", track.Name, "artist", track.Artist())
	o.emit(Update{})
	return nil
}

// command flips the state to target, runs send against the bound device and restores the state on failure.
func (o *Orchestrator) command(target State, send func(device string) error) error {
	o.mu.Lock()
	device := o.device
	if device == "" {
		o.mu.Unlock()
		return o.notify(shared.ErrDeviceUnavailable)
	}
	prev := o.state
	o.state = target
	o.mu.Unlock()
	o.emit(Update{})

	if err := send(device); err != nil {
		o.mu.Lock()
		if o.state == target {
			o.state = prev
		}
		o.mu.Unlock()
		return o.fail(err)
	}
	return nil
}

// notify surfaces err to the user and returns it.
func (o *Orchestrator) notify(err error) error {
	o.emit(Update{Notice: Notice(err), Err: err})
	return err
}

// fail logs err, surfaces it to the user and returns it.
func (o *Orchestrator) fail(err error) error {
	if !errors.Is(err, context.Canceled) {
		o.logger.Error("playback request failed", "error", err)
	}
	return o.notify(err)
}

// emit fills u with the current state and sends it without blocking.
func (o *Orchestrator) emit(u Update) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	u.State = o.state
	u.Track = o.track
	u.Device = o.device
	o.mu.Unlock()

	select {
	case o.updates <- u:
	default:
	}
}

// Notice returns the user-facing message for err.
func Notice(err error) string {
	switch {
	case errors.Is(err, shared.ErrMissingSeeds):
		return "Please select at least 1 song to start playing."
	case errors.Is(err, shared.ErrSeedLimit):
		return fmt.Sprintf("You can only select up to %d songs.", shared.MaxSeeds)
	case errors.Is(err, shared.ErrDuplicateSeed):
		return "This song has already been added."
	case errors.Is(err, shared.ErrDeviceUnavailable):
		return "No playback device is ready yet."
	case errors.Is(err, shared.ErrNoRecommendation):
		return "No recommendation found for these songs."
	case errors.Is(err, shared.ErrRateLimited):
		var rle *shared.RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			return fmt.Sprintf("Too many requests. Try again in %s.", rle.RetryAfter.Round(time.Second))
		}
		return "Too many requests. Try again shortly."
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrRefreshFailed):
		return "Your session expired. Log in again."
	default:
		return err.Error()
	}
}
