// Package playback implements the per-video playback session: play/pause
// control, the premium preview gate, like/favorite toggles, duration
// correction and watch-history capture on teardown.
//
// A [Session] is created for one video and one viewer. The host drives it
// with media-element events ([Session.OnTimeTick],
// [Session.OnDurationChange]) and user actions ([Session.TogglePlayPause],
// [Session.ToggleLike], [Session.ToggleFavorite], [Session.Subscribe]).
// UI state flows back through listeners registered with [Session.OnTick],
// [Session.OnPlayStateChange] and [Session.OnSubscriptionRequired], or by
// polling [Session.State].
//
// Premium content watched without a subscription is paused once elapsed
// time reaches the preview cutoff (30 seconds by default). The check runs on
// every tick; only the first crossing pauses the element.
//
// [Session.Dispose] is the session's cancellation point. It emits exactly
// one watch record when anything was watched, with completed set when at
// least 90% of the video was seen.
package playback
