package playback

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bitzomax/internal/mediatypes"
)

type mockCatalog struct {
	mu        sync.Mutex
	video     mediatypes.Video
	getErr    error
	updateErr error
	updates   []float64
}

func (m *mockCatalog) GetVideoByID(_ context.Context, id string) (mediatypes.Video, error) {
	if m.getErr != nil {
		return mediatypes.Video{}, m.getErr
	}
	v := m.video
	v.ID = id
	return v, nil
}

func (m *mockCatalog) UpdateDuration(_ context.Context, _ string, seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, seconds)
	return m.updateErr
}

type watchCall struct {
	id        string
	seconds   float64
	completed bool
}

type mockUserState struct {
	mu          sync.Mutex
	user        mediatypes.User
	likeErr     error
	favoriteErr error
	watchErr    error
	liked       bool
	watches     []watchCall
	favorites   map[string]bool
}

func (m *mockUserState) GetCurrentUser(_ context.Context) (mediatypes.User, error) {
	return m.user, nil
}

func (m *mockUserState) ToggleLike(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.likeErr != nil {
		return false, m.likeErr
	}
	m.liked = !m.liked
	return m.liked, nil
}

func (m *mockUserState) AddFavorite(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.favoriteErr != nil {
		return m.favoriteErr
	}
	if m.favorites == nil {
		m.favorites = map[string]bool{}
	}
	m.favorites[id] = true
	return nil
}

func (m *mockUserState) RemoveFavorite(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.favoriteErr != nil {
		return m.favoriteErr
	}
	delete(m.favorites, id)
	return nil
}

func (m *mockUserState) RecordWatch(_ context.Context, id string, seconds float64, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches = append(m.watches, watchCall{id, seconds, completed})
	return m.watchErr
}

type mockSubscription struct {
	subscribed bool
	err        error
}

func (m *mockSubscription) IsSubscribed(_ context.Context) (bool, error) { return m.subscribed, nil }

func (m *mockSubscription) Subscribe(_ context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.subscribed = true
	return nil
}

type mockElement struct {
	playErr  error
	time     float64
	plays    int
	pauses   int
	seeks    []float64
	released int
}

func (e *mockElement) Play(_ context.Context) error {
	e.plays++
	return e.playErr
}
func (e *mockElement) Pause()               { e.pauses++ }
func (e *mockElement) Seek(seconds float64) { e.seeks = append(e.seeks, seconds); e.time = seconds }
func (e *mockElement) CurrentTime() float64 { return e.time }
func (e *mockElement) Release()             { e.released++ }

type fixture struct {
	session *Session
	catalog *mockCatalog
	user    *mockUserState
	sub     *mockSubscription
	element *mockElement
}

func newFixture(t *testing.T, video mediatypes.Video, subscribed, primary bool) *fixture {
	t.Helper()
	f := &fixture{
		catalog: &mockCatalog{video: video},
		user:    &mockUserState{},
		sub:     &mockSubscription{subscribed: subscribed},
		element: &mockElement{},
	}
	s, err := New(context.Background(), Options{
		VideoID:      "v1",
		Primary:      primary,
		Element:      f.element,
		Catalog:      f.catalog,
		User:         f.user,
		Subscription: f.sub,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.session = s
	return f
}

func TestNewLoadsUserState(t *testing.T) {
	catalog := &mockCatalog{video: mediatypes.Video{Title: "Sunrise", Duration: 120}}
	user := &mockUserState{user: mediatypes.User{LikedVideos: []string{"v1"}, FavoriteVideos: []string{"v2"}}}

	s, err := New(context.Background(), Options{
		VideoID: "v1", Element: &mockElement{}, Catalog: catalog, User: user,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	st := s.State()
	if !st.Liked || st.Favorite {
		t.Errorf("liked=%v favorite=%v, want true/false", st.Liked, st.Favorite)
	}
	if st.Duration != 120 || st.Title != "Sunrise" {
		t.Errorf("state = %+v", st)
	}
	if st.PreviewCutoff != DefaultPreviewCutoff {
		t.Errorf("cutoff = %v, want %v", st.PreviewCutoff, DefaultPreviewCutoff)
	}
	if st.Playing || st.Elapsed != 0 {
		t.Error("new session should be paused at zero")
	}
}

func TestNewFailsWhenVideoMissing(t *testing.T) {
	catalog := &mockCatalog{getErr: errors.New("not found")}
	_, err := New(context.Background(), Options{
		VideoID: "v1", Element: &mockElement{}, Catalog: catalog, User: &mockUserState{},
	})
	if err == nil {
		t.Fatal("New() should fail when the video cannot be loaded")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Error("New() with empty options should fail")
	}
}

func TestPreviewCutoff(t *testing.T) {
	f := newFixture(t, mediatypes.Video{IsPremium: true, Duration: 300}, false, true)
	s := f.session

	var gateSignals, pauses int
	s.OnSubscriptionRequired(func() { gateSignals++ })
	s.OnPlayStateChange(func(playing bool) {
		if !playing {
			pauses++
		}
	})

	if err := s.TogglePlayPause(context.Background()); err != nil {
		t.Fatalf("TogglePlayPause() error = %v", err)
	}
	for _, tick := range []float64{29.0, 29.9, 30.0} {
		s.OnTimeTick(tick)
	}

	st := s.State()
	if st.Playing {
		t.Error("session should be paused at the cutoff")
	}
	if !st.SubscriptionRequired {
		t.Error("subscription banner should be raised")
	}
	if f.element.pauses != 1 {
		t.Errorf("element paused %d times, want 1", f.element.pauses)
	}

	// Further ticks past the cutoff are no-ops.
	s.OnTimeTick(30.2)
	s.OnTimeTick(31)
	if f.element.pauses != 1 {
		t.Errorf("element paused %d times after extra ticks, want 1", f.element.pauses)
	}
	if gateSignals != 1 || pauses != 1 {
		t.Errorf("gate signals = %d, pause notifications = %d, want 1 each", gateSignals, pauses)
	}

	// Play is refused while the gate is engaged.
	if err := s.TogglePlayPause(context.Background()); !errors.Is(err, ErrSubscriptionRequired) {
		t.Errorf("TogglePlayPause() error = %v, want %v", err, ErrSubscriptionRequired)
	}
	if s.State().Playing {
		t.Error("play should stay refused past the cutoff")
	}
}

func TestPreviewCutoffReappliesAfterSeekBack(t *testing.T) {
	f := newFixture(t, mediatypes.Video{IsPremium: true, Duration: 300}, false, true)
	s := f.session

	s.OnTimeTick(30)
	s.OnTimeTick(10)
	if err := s.TogglePlayPause(context.Background()); err != nil {
		t.Fatalf("TogglePlayPause() after seek back error = %v", err)
	}
	s.OnTimeTick(30.5)

	if f.element.pauses != 2 {
		t.Errorf("element paused %d times, want 2", f.element.pauses)
	}
}

func TestNoCutoffWhenSubscribedOrFree(t *testing.T) {
	tests := []struct {
		name       string
		premium    bool
		subscribed bool
	}{
		{"premium and subscribed", true, true},
		{"free content", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, mediatypes.Video{IsPremium: tt.premium, Duration: 300}, tt.subscribed, true)
			_ = f.session.TogglePlayPause(context.Background())
			f.session.OnTimeTick(45)

			if !f.session.State().Playing {
				t.Error("playback should continue past 30s")
			}
			if f.element.pauses != 0 {
				t.Errorf("element paused %d times, want 0", f.element.pauses)
			}
		})
	}
}

func TestSetSubscribedReleasesGate(t *testing.T) {
	f := newFixture(t, mediatypes.Video{IsPremium: true, Duration: 300}, false, true)
	s := f.session

	s.OnTimeTick(31)
	s.SetSubscribed(true)

	if s.State().SubscriptionRequired {
		t.Error("banner should clear after subscribing")
	}
	if err := s.TogglePlayPause(context.Background()); err != nil {
		t.Errorf("TogglePlayPause() error = %v", err)
	}
}

func TestSubscribeResumesPlayback(t *testing.T) {
	f := newFixture(t, mediatypes.Video{IsPremium: true, Duration: 300}, false, true)
	s := f.session

	s.OnTimeTick(30)
	if err := s.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	st := s.State()
	if !st.Subscribed || st.SubscriptionRequired || !st.Playing {
		t.Errorf("state after Subscribe = %+v", st)
	}
	if !f.sub.subscribed {
		t.Error("subscription collaborator was not called")
	}
}

func TestTogglePlayPauseRejected(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 100}, false, true)
	f.element.playErr = errors.New("autoplay blocked")

	err := f.session.TogglePlayPause(context.Background())
	if !errors.Is(err, ErrPlayRejected) {
		t.Fatalf("error = %v, want %v", err, ErrPlayRejected)
	}
	st := f.session.State()
	if st.Playing || st.SubscriptionRequired {
		t.Errorf("state = %+v, want paused with no banner", st)
	}
}

func TestTogglePlayPauseToggles(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 100}, false, true)
	s := f.session

	var states []bool
	s.OnPlayStateChange(func(playing bool) { states = append(states, playing) })

	_ = s.TogglePlayPause(context.Background())
	_ = s.TogglePlayPause(context.Background())

	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("play state notifications = %v, want [true false]", states)
	}
	if f.element.plays != 1 || f.element.pauses != 1 {
		t.Errorf("plays=%d pauses=%d, want 1/1", f.element.plays, f.element.pauses)
	}
}

func TestOnTickListener(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 100}, false, true)
	var got []float64
	f.session.OnTick(func(elapsed float64) { got = append(got, elapsed) })

	f.session.OnTimeTick(1.5)
	f.session.OnTimeTick(2.5)

	if len(got) != 2 || got[1] != 2.5 {
		t.Errorf("ticks = %v", got)
	}
}

func TestDisposeRecordsWatchOnce(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 200}, false, true)
	s := f.session

	s.OnTimeTick(120)
	s.Dispose(context.Background())
	s.Dispose(context.Background())

	if len(f.user.watches) != 1 {
		t.Fatalf("recorded %d watches, want 1", len(f.user.watches))
	}
	if w := f.user.watches[0]; w.id != "v1" || w.seconds != 120 {
		t.Errorf("watch = %+v", w)
	}
	if f.element.released != 1 {
		t.Errorf("element released %d times, want 1", f.element.released)
	}
	if !s.State().Disposed {
		t.Error("state should report disposed")
	}
}

func TestDisposeCompletedClassification(t *testing.T) {
	tests := []struct {
		elapsed   float64
		completed bool
	}{
		{185, true},
		{180, true},
		{150, false},
	}

	for _, tt := range tests {
		f := newFixture(t, mediatypes.Video{Duration: 200}, false, true)
		f.session.OnTimeTick(tt.elapsed)
		f.session.Dispose(context.Background())

		if got := f.user.watches[0].completed; got != tt.completed {
			t.Errorf("elapsed %v: completed = %v, want %v", tt.elapsed, got, tt.completed)
		}
	}
}

func TestDisposeWithoutWatchingRecordsNothing(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 200}, false, true)
	f.session.Dispose(context.Background())
	if len(f.user.watches) != 0 {
		t.Errorf("recorded %d watches, want 0", len(f.user.watches))
	}
}

func TestDisposeSwallowsPersistenceFailure(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 200}, false, true)
	f.user.watchErr = errors.New("db down")
	f.session.OnTimeTick(10)
	f.session.Dispose(context.Background())

	if len(f.user.watches) != 1 {
		t.Errorf("recorded %d watches, want 1 attempt", len(f.user.watches))
	}
}

func TestOperationsAfterDispose(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 200}, false, true)
	s := f.session
	s.Dispose(context.Background())

	if err := s.TogglePlayPause(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Errorf("TogglePlayPause() error = %v, want %v", err, ErrDisposed)
	}
	if _, err := s.ToggleLike(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Errorf("ToggleLike() error = %v, want %v", err, ErrDisposed)
	}
	s.OnTimeTick(50)
	if s.State().Elapsed != 0 {
		t.Error("ticks after dispose should be ignored")
	}
}

func TestDurationCorrection(t *testing.T) {
	tests := []struct {
		name        string
		primary     bool
		reported    float64
		wantUpdates int
		wantTotal   float64
	}{
		{"primary adopts and forwards", true, 125, 1, 125},
		{"secondary adopts only", false, 125, 0, 125},
		{"within epsilon ignored", true, 120.3, 0, 120},
		{"invalid ignored", true, 0, 0, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, mediatypes.Video{Duration: 120}, false, tt.primary)
			if err := f.session.OnDurationChange(context.Background(), tt.reported); err != nil {
				t.Fatalf("OnDurationChange() error = %v", err)
			}
			if len(f.catalog.updates) != tt.wantUpdates {
				t.Errorf("catalog updates = %d, want %d", len(f.catalog.updates), tt.wantUpdates)
			}
			if got := f.session.State().Duration; got != tt.wantTotal {
				t.Errorf("duration = %v, want %v", got, tt.wantTotal)
			}
		})
	}
}

func TestDurationCorrectionFailureIsReported(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 120}, false, true)
	f.catalog.updateErr = errors.New("write failed")

	if err := f.session.OnDurationChange(context.Background(), 90); err == nil {
		t.Error("OnDurationChange() should report catalog failure")
	}
	if got := f.session.State().Duration; got != 90 {
		t.Errorf("duration = %v, want 90 even when the catalog write fails", got)
	}
}

func TestToggleLike(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 120}, false, true)

	liked, err := f.session.ToggleLike(context.Background())
	if err != nil || !liked {
		t.Fatalf("ToggleLike() = %v, %v; want true, nil", liked, err)
	}
	liked, err = f.session.ToggleLike(context.Background())
	if err != nil || liked {
		t.Fatalf("second ToggleLike() = %v, %v; want false, nil", liked, err)
	}
}

func TestToggleLikeRevertsOnFailure(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 120}, false, true)
	f.user.likeErr = errors.New("server said no")

	liked, err := f.session.ToggleLike(context.Background())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("error = %v, want %v", err, ErrPersistence)
	}
	if liked || f.session.State().Liked {
		t.Error("liked flag should be restored after a failed write")
	}
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 120}, false, true)

	fav, err := f.session.ToggleFavorite(context.Background())
	if err != nil || !fav || !f.user.favorites["v1"] {
		t.Fatalf("ToggleFavorite() = %v, %v", fav, err)
	}
	fav, err = f.session.ToggleFavorite(context.Background())
	if err != nil || fav || f.user.favorites["v1"] {
		t.Fatalf("second ToggleFavorite() = %v, %v", fav, err)
	}
}

func TestToggleFavoriteRevertsOnFailure(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 120}, false, true)
	f.user.favoriteErr = errors.New("server said no")

	fav, err := f.session.ToggleFavorite(context.Background())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("error = %v, want %v", err, ErrPersistence)
	}
	if fav || f.session.State().Favorite {
		t.Error("favorite flag should be restored after a failed write")
	}
}

func TestTransferElement(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 120}, false, true)
	s := f.session

	_ = s.TogglePlayPause(context.Background())
	f.element.time = 42

	next := &mockElement{}
	if err := s.TransferElement(context.Background(), next); err != nil {
		t.Fatalf("TransferElement() error = %v", err)
	}

	if len(next.seeks) != 1 || next.seeks[0] != 42 {
		t.Errorf("new element seeks = %v, want [42]", next.seeks)
	}
	if next.plays != 1 {
		t.Errorf("new element plays = %d, want 1", next.plays)
	}
	if f.element.released != 1 || f.element.pauses != 1 {
		t.Errorf("old element released=%d paused=%d, want 1/1", f.element.released, f.element.pauses)
	}

	// The new element now receives commands.
	_ = s.TogglePlayPause(context.Background())
	if next.pauses != 1 {
		t.Errorf("new element pauses = %d, want 1", next.pauses)
	}
}

func TestTransferElementWhilePaused(t *testing.T) {
	f := newFixture(t, mediatypes.Video{Duration: 120}, false, true)
	f.element.time = 7

	next := &mockElement{}
	if err := f.session.TransferElement(context.Background(), next); err != nil {
		t.Fatalf("TransferElement() error = %v", err)
	}
	if next.plays != 0 {
		t.Errorf("paused session should not start the new element")
	}
	if next.time != 7 {
		t.Errorf("new element time = %v, want 7", next.time)
	}
}
