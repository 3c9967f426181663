package playback

import (
	"context"

	"bitzomax/internal/mediatypes"
)

// Catalog supplies video metadata.
type Catalog interface {
	GetVideoByID(ctx context.Context, id string) (mediatypes.Video, error)
	UpdateDuration(ctx context.Context, id string, seconds float64) error
}

// UserState persists the viewer's per-video state.
type UserState interface {
	GetCurrentUser(ctx context.Context) (mediatypes.User, error)
	ToggleLike(ctx context.Context, id string) (bool, error)
	AddFavorite(ctx context.Context, id string) error
	RemoveFavorite(ctx context.Context, id string) error
	RecordWatch(ctx context.Context, id string, seconds float64, completed bool) error
}

// Subscription reports and changes the viewer's subscription.
type Subscription interface {
	IsSubscribed(ctx context.Context) (bool, error)
	Subscribe(ctx context.Context) error
}

// Element is the media element a session controls. Methods are called with
// the session lock held and must not call back into the session.
type Element interface {
	Play(ctx context.Context) error
	Pause()
	Seek(seconds float64)
	CurrentTime() float64
	Release()
}
