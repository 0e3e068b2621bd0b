package player

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
	"golang.org/x/time/rate"
)

// EventKind identifies a remote player notification.
type EventKind int

const (
	EventReady        EventKind = iota // a device is ready to receive commands
	EventStateChanged                  // the player reported a new snapshot
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventStateChanged:
		return "player_state_changed"
	default:
		return ""
	}
}

// Event is one notification from the remote player.
//
// Delivery is at least once and may be reordered.
type Event struct {
	Kind     EventKind
	DeviceID string                  // set for EventReady
	Snapshot models.PlaybackSnapshot // set for EventStateChanged
}

// Handler receives player events.
type Handler func(Event)

// Subscription is the handle returned by [Feed.Subscribe]. Close unregisters the handler and is idempotent.
type Subscription interface {
	Close()
}

// Feed delivers remote player events to registered handlers.
type Feed interface {
	Subscribe(h Handler) Subscription
}

// Emitter is an in-memory [Feed]. Emit calls every handler in subscription order on the caller's goroutine.
type Emitter struct {
	mu       sync.RWMutex
	next     int
	handlers []entry
}

type entry struct {
	id int
	h  Handler
}

type subscription struct {
	once  sync.Once
	close func()
}

func (s *subscription) Close() { s.once.Do(s.close) }

// NewEmitter creates an emitter with no handlers.
func NewEmitter() *Emitter {
	return &Emitter{}
}

func (e *Emitter) Subscribe(h Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	id := e.next
	e.handlers = append(e.handlers, entry{id: id, h: h})

	return &subscription{close: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.handlers = slices.DeleteFunc(e.handlers, func(en entry) bool { return en.id == id })
	}}
}

// Emit delivers ev to every registered handler.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := slices.Clone(e.handlers)
	e.mu.RUnlock()

	for _, en := range handlers {
		en.h(ev)
	}
}

// Ready emits an [EventReady] for deviceID.
func (e *Emitter) Ready(deviceID string) {
	e.Emit(Event{Kind: EventReady, DeviceID: deviceID})
}

// StateChanged emits an [EventStateChanged] carrying s.
func (e *Emitter) StateChanged(s models.PlaybackSnapshot) {
	e.Emit(Event{Kind: EventStateChanged, Snapshot: s})
}

// Len returns the number of registered handlers.
func (e *Emitter) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// PlayerAPI reads the remote player through the findtune server.
type PlayerAPI interface {
	Devices(ctx context.Context) ([]models.Device, error)
	State(ctx context.Context) (*models.PlayerState, error)
}

// PollingFeed turns periodic player-state reads into events.
//
// The first device found (preferring one named like the configured device, then the active one) is reported
// as ready. A snapshot is emitted only when it differs from the previous one.
type PollingFeed struct {
	*Emitter

	api        PlayerAPI
	limiter    *rate.Limiter
	deviceName string
	logger     *log.Logger

	device string
	last   *models.PlaybackSnapshot
}

// NewPollingFeed polls api at most once per interval.
func NewPollingFeed(api PlayerAPI, interval time.Duration, deviceName string, logger *log.Logger) *PollingFeed {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &PollingFeed{
		Emitter:    NewEmitter(),
		api:        api,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		deviceName: deviceName,
		logger:     shared.WithLogger(logger, "component", "feed"),
	}
}

// Run polls until ctx is cancelled. Poll failures are logged; a rate limit pauses polling for the
// server's delay.
func (f *PollingFeed) Run(ctx context.Context) error {
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		err := f.Poll(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("poll failed", "error", err)

		var rle *shared.RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rle.RetryAfter):
			}
		}
	}
}

// Poll reads the player once and emits events for what changed. Not safe for concurrent use.
func (f *PollingFeed) Poll(ctx context.Context) error {
	if f.device == "" {
		devices, err := f.api.Devices(ctx)
		if err != nil {
			return err
		}
		if d := pickDevice(devices, f.deviceName); d != nil {
			f.device = d.ID
			f.Ready(d.ID)
		}
	}

	state, err := f.api.State(ctx)
	if err != nil || state == nil {
		return err
	}

	if d := state.Device; d != nil && d.ID != "" && d.ID != f.device {
		f.device = d.ID
		f.Ready(d.ID)
	}

	if f.last != nil && sameSnapshot(*f.last, state.Snapshot) {
		return nil
	}
	snap := state.Snapshot
	f.last = &snap
	f.StateChanged(snap)
	return nil
}

func pickDevice(devices []models.Device, name string) *models.Device {
	if len(devices) == 0 {
		return nil
	}
	if name != "" {
		for i := range devices {
			if strings.EqualFold(devices[i].Name, name) {
				return &devices[i]
			}
		}
	}
	for i := range devices {
		if devices[i].Active {
			return &devices[i]
		}
	}
	return &devices[0]
}

func sameSnapshot(a, b models.PlaybackSnapshot) bool {
	return a.TrackURI() == b.TrackURI() &&
		a.Loading == b.Loading &&
		a.Paused == b.Paused &&
		a.PositionMs == b.PositionMs &&
		slices.Equal(a.DisallowPausingReasons, b.DisallowPausingReasons)
}
