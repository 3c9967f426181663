package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"bitzomax/internal/logging"
	"bitzomax/internal/mediatypes"
	"bitzomax/internal/metrics"
)

var log = logging.For("playback")

// DefaultPreviewCutoff is how many seconds of premium content a viewer
// without a subscription may watch.
const DefaultPreviewCutoff = 30.0

// durationEpsilon is the smallest duration difference worth correcting.
const durationEpsilon = 0.5

var (
	// ErrPlayRejected means the element refused to start playing.
	ErrPlayRejected = errors.New("playback rejected by media element")
	// ErrSubscriptionRequired means the preview limit has been reached.
	ErrSubscriptionRequired = errors.New("subscription required to continue watching")
	// ErrPersistence means a like or favorite change could not be saved.
	ErrPersistence = errors.New("failed to persist change")
	// ErrDisposed means the session has already been torn down.
	ErrDisposed = errors.New("session disposed")
)

// Options configures a new session.
type Options struct {
	VideoID      string
	Primary      bool
	Element      Element
	Catalog      Catalog
	User         UserState
	Subscription Subscription
	// Cutoff overrides DefaultPreviewCutoff when positive.
	Cutoff float64
}

// State is a snapshot of a session.
type State struct {
	VideoID              string  `json:"videoId"`
	Title                string  `json:"title"`
	IsPremium            bool    `json:"isPremium"`
	Subscribed           bool    `json:"subscribed"`
	Elapsed              float64 `json:"elapsed"`
	Duration             float64 `json:"duration"`
	Playing              bool    `json:"playing"`
	Liked                bool    `json:"liked"`
	Favorite             bool    `json:"favorite"`
	SubscriptionRequired bool    `json:"subscriptionRequired"`
	PreviewCutoff        float64 `json:"previewCutoff"`
	Primary              bool    `json:"primary"`
	Disposed             bool    `json:"disposed"`
}

// Session is the playback state machine for one video.
type Session struct {
	catalog      Catalog
	user         UserState
	subscription Subscription

	mu                   sync.Mutex
	video                mediatypes.Video
	element              Element
	primary              bool
	cutoff               float64
	subscribed           bool
	elapsed              float64
	duration             float64
	playing              bool
	liked                bool
	favorite             bool
	subscriptionRequired bool
	gated                bool
	disposed             bool

	tickListeners []func(float64)
	playListeners []func(bool)
	gateListeners []func()

	disposeOnce sync.Once
}

// New loads the video, the viewer's liked/favorite lists and subscription
// status, and returns a paused session at time zero.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.VideoID == "" {
		return nil, errors.New("playback: video id is required")
	}
	if opts.Element == nil || opts.Catalog == nil || opts.User == nil {
		return nil, errors.New("playback: element, catalog and user state are required")
	}

	video, err := opts.Catalog.GetVideoByID(ctx, opts.VideoID)
	if err != nil {
		return nil, fmt.Errorf("playback: load video %s: %w", opts.VideoID, err)
	}

	s := &Session{
		catalog:      opts.Catalog,
		user:         opts.User,
		subscription: opts.Subscription,
		video:        video,
		element:      opts.Element,
		primary:      opts.Primary,
		cutoff:       opts.Cutoff,
		duration:     video.Duration,
	}
	if s.cutoff <= 0 {
		s.cutoff = DefaultPreviewCutoff
	}

	if user, err := opts.User.GetCurrentUser(ctx); err != nil {
		log.Warn("failed to load user state for video %s: %v", opts.VideoID, err)
	} else {
		s.liked = user.Liked(opts.VideoID)
		s.favorite = user.Favorite(opts.VideoID)
	}

	if opts.Subscription != nil {
		subscribed, err := opts.Subscription.IsSubscribed(ctx)
		if err != nil {
			log.Warn("failed to load subscription status: %v", err)
		}
		s.subscribed = subscribed
	}

	metrics.PlaybackSessionsActive.Inc()
	return s, nil
}

// OnTick registers fn to receive every elapsed-time update.
func (s *Session) OnTick(fn func(elapsed float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickListeners = append(s.tickListeners, fn)
}

// OnPlayStateChange registers fn to receive play/pause transitions.
func (s *Session) OnPlayStateChange(fn func(playing bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playListeners = append(s.playListeners, fn)
}

// OnSubscriptionRequired registers fn to be called when the preview gate
// engages.
func (s *Session) OnSubscriptionRequired(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateListeners = append(s.gateListeners, fn)
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		VideoID:              s.video.ID,
		Title:                s.video.Title,
		IsPremium:            s.video.IsPremium,
		Subscribed:           s.subscribed,
		Elapsed:              s.elapsed,
		Duration:             s.duration,
		Playing:              s.playing,
		Liked:                s.liked,
		Favorite:             s.favorite,
		SubscriptionRequired: s.subscriptionRequired,
		PreviewCutoff:        s.cutoff,
		Primary:              s.primary,
		Disposed:             s.disposed,
	}
}

// gateEngaged reports whether the preview limit blocks playback.
// Callers hold s.mu.
func (s *Session) gateEngaged() bool {
	return s.video.IsPremium && !s.subscribed && s.elapsed >= s.cutoff
}

// setPlaying records a play state and returns the listener calls to make
// once the lock is released. Callers hold s.mu.
func (s *Session) setPlaying(playing bool) []func() {
	if s.playing == playing {
		return nil
	}
	s.playing = playing
	calls := make([]func(), 0, len(s.playListeners))
	for _, fn := range s.playListeners {
		calls = append(calls, func() { fn(playing) })
	}
	return calls
}

// raiseGate shows the subscription banner. Callers hold s.mu.
func (s *Session) raiseGate() []func() {
	s.subscriptionRequired = true
	return append([]func(){}, s.gateListeners...)
}

func run(calls []func()) {
	for _, fn := range calls {
		fn()
	}
}

// TogglePlayPause pauses a playing session or starts a paused one.
func (s *Session) TogglePlayPause(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}

	if s.playing {
		s.element.Pause()
		calls := s.setPlaying(false)
		s.mu.Unlock()
		run(calls)
		return nil
	}

	if s.gateEngaged() {
		calls := s.raiseGate()
		s.mu.Unlock()
		run(calls)
		return ErrSubscriptionRequired
	}

	if err := s.element.Play(ctx); err != nil {
		calls := s.setPlaying(false)
		s.mu.Unlock()
		run(calls)
		log.Debug("play rejected for video %s: %v", s.video.ID, err)
		return fmt.Errorf("%w: %w", ErrPlayRejected, err)
	}

	calls := s.setPlaying(true)
	s.mu.Unlock()
	run(calls)
	return nil
}

// OnTimeTick records the element's current time and enforces the preview
// limit. Ticks past the limit after the first pause change nothing else.
func (s *Session) OnTimeTick(currentTime float64) {
	s.mu.Lock()
	if s.disposed || math.IsNaN(currentTime) || currentTime < 0 {
		s.mu.Unlock()
		return
	}

	s.elapsed = currentTime
	calls := make([]func(), 0, len(s.tickListeners))
	for _, fn := range s.tickListeners {
		calls = append(calls, func() { fn(currentTime) })
	}

	if s.gateEngaged() {
		if !s.gated {
			s.gated = true
			s.element.Pause()
			calls = append(calls, s.setPlaying(false)...)
			calls = append(calls, s.raiseGate()...)
			metrics.PlaybackPreviewCutoffsTotal.Inc()
			log.Debug("preview limit reached for video %s at %.1fs", s.video.ID, currentTime)
		}
	} else if s.elapsed < s.cutoff {
		s.gated = false
	}
	s.mu.Unlock()

	run(calls)
}

// OnDurationChange adopts the element's reported duration when it differs
// from the known value. Only the primary session forwards the correction to
// the catalog.
func (s *Session) OnDurationChange(ctx context.Context, seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return nil
	}

	s.mu.Lock()
	if s.disposed || math.Abs(seconds-s.duration) <= durationEpsilon {
		s.mu.Unlock()
		return nil
	}
	s.duration = seconds
	primary := s.primary
	id := s.video.ID
	s.mu.Unlock()

	if !primary {
		return nil
	}
	if err := s.catalog.UpdateDuration(ctx, id, seconds); err != nil {
		log.Warn("failed to update duration for video %s: %v", id, err)
		return fmt.Errorf("update duration: %w", err)
	}
	metrics.PlaybackDurationCorrectionsTotal.Inc()
	return nil
}

// ToggleLike flips the liked flag and persists it. On failure the flag is
// restored and the returned error wraps ErrPersistence.
func (s *Session) ToggleLike(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false, ErrDisposed
	}
	prev := s.liked
	s.liked = !prev
	id := s.video.ID
	s.mu.Unlock()

	now, err := s.user.ToggleLike(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.liked = prev
		metrics.PlaybackToggleFailuresTotal.WithLabelValues("like").Inc()
		log.Warn("failed to toggle like for video %s: %v", id, err)
		return prev, fmt.Errorf("%w: like %s: %w", ErrPersistence, id, err)
	}
	s.liked = now
	return now, nil
}

// ToggleFavorite flips the favorite flag and persists it. On failure the
// flag is restored and the returned error wraps ErrPersistence.
func (s *Session) ToggleFavorite(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false, ErrDisposed
	}
	prev := s.favorite
	target := !prev
	s.favorite = target
	id := s.video.ID
	s.mu.Unlock()

	var err error
	if target {
		err = s.user.AddFavorite(ctx, id)
	} else {
		err = s.user.RemoveFavorite(ctx, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.favorite = prev
		metrics.PlaybackToggleFailuresTotal.WithLabelValues("favorite").Inc()
		log.Warn("failed to toggle favorite for video %s: %v", id, err)
		return prev, fmt.Errorf("%w: favorite %s: %w", ErrPersistence, id, err)
	}
	return target, nil
}

// SetSubscribed applies a subscription change. Subscribing releases the
// preview gate.
func (s *Session) SetSubscribed(subscribed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = subscribed
	if subscribed {
		s.subscriptionRequired = false
		s.gated = false
	}
}

// Subscribe subscribes the viewer, hides the banner and resumes playback.
func (s *Session) Subscribe(ctx context.Context) error {
	if s.subscription == nil {
		return errors.New("playback: no subscription service")
	}
	if err := s.subscription.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.SetSubscribed(true)

	s.mu.Lock()
	if s.disposed || s.playing {
		s.mu.Unlock()
		return nil
	}
	if err := s.element.Play(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrPlayRejected, err)
	}
	calls := s.setPlaying(true)
	s.mu.Unlock()
	run(calls)
	return nil
}

// TransferElement hands playback to el, carrying over the current time and
// play state, then releases the previous element.
func (s *Session) TransferElement(ctx context.Context, el Element) error {
	if el == nil {
		return errors.New("playback: nil element")
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	old := s.element
	if old == el {
		s.mu.Unlock()
		return nil
	}

	el.Seek(old.CurrentTime())
	wasPlaying := s.playing
	if wasPlaying {
		old.Pause()
	}
	s.element = el
	old.Release()

	var calls []func()
	var err error
	if wasPlaying {
		if playErr := el.Play(ctx); playErr != nil {
			calls = s.setPlaying(false)
			err = fmt.Errorf("%w: %w", ErrPlayRejected, playErr)
		}
	}
	s.mu.Unlock()

	run(calls)
	return err
}

// Dispose tears the session down. The first call releases the element and
// records what was watched; later calls do nothing. Persistence failures
// are logged, not returned.
func (s *Session) Dispose(ctx context.Context) {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		if s.playing {
			s.element.Pause()
			s.playing = false
		}
		s.element.Release()
		id := s.video.ID
		elapsed := s.elapsed
		completed := mediatypes.IsCompleted(elapsed, s.duration)
		s.mu.Unlock()

		metrics.PlaybackSessionsActive.Dec()

		if elapsed <= 0 {
			return
		}

		status := "success"
		if err := s.user.RecordWatch(ctx, id, elapsed, completed); err != nil {
			status = "error"
			log.Warn("failed to record watch history for video %s: %v", id, err)
		}
		metrics.PlaybackWatchRecordsTotal.WithLabelValues(fmt.Sprint(completed), status).Inc()
	})
}
