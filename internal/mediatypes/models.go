package mediatypes

import "time"

// ConversionStatus tracks what happened to an uploaded video's encode.
type ConversionStatus string

const (
	// ConversionPending means the upload is stored and a transcode is running.
	ConversionPending ConversionStatus = "pending"
	// ConversionConverted means the WebM output replaced the original.
	ConversionConverted ConversionStatus = "converted"
	// ConversionOriginal means the original file is served unconverted.
	ConversionOriginal ConversionStatus = "original"
	// ConversionFailed means neither a WebM nor a usable original exists.
	ConversionFailed ConversionStatus = "failed"
)

// Video is a catalog entry.
type Video struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	ThumbnailURL     string           `json:"thumbnailUrl"`
	VideoURL         string           `json:"videoUrl"`
	Duration         float64          `json:"duration"`
	Views            int64            `json:"views"`
	Likes            int64            `json:"likes"`
	IsPremium        bool             `json:"isPremium"`
	UploadDate       time.Time        `json:"uploadDate"`
	Tags             []string         `json:"tags"`
	OriginalFormat   string           `json:"originalFormat,omitempty"`
	ConversionStatus ConversionStatus `json:"conversionStatus,omitempty"`
	Size             int64            `json:"size,omitempty"`
	IsVisible        bool             `json:"isVisible"`
}

// User is the viewer's per-video state.
type User struct {
	LikedVideos    []string `json:"likedVideos"`
	FavoriteVideos []string `json:"favoriteVideos"`
	IsSubscribed   bool     `json:"isSubscribed"`
}

// Liked reports whether id is in the liked list.
func (u User) Liked(id string) bool {
	return contains(u.LikedVideos, id)
}

// Favorite reports whether id is in the favorites list.
func (u User) Favorite(id string) bool {
	return contains(u.FavoriteVideos, id)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// WatchRecord is one watch-history entry.
type WatchRecord struct {
	VideoID       string    `json:"videoId"`
	Timestamp     time.Time `json:"timestamp"`
	WatchDuration float64   `json:"watchDuration"`
	Completed     bool      `json:"completed"`
}

// CompletionRatio is the fraction of a video that must be watched for the
// view to count as completed.
const CompletionRatio = 0.9

// IsCompleted reports whether watching elapsed seconds of a total-second
// video counts as a completed view. An unknown duration never completes.
func IsCompleted(elapsed, total float64) bool {
	if total <= 0 {
		return false
	}
	return elapsed >= CompletionRatio*total
}

// Plan is a subscription billing period.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// SubscriptionDetails describes the viewer's subscription.
type SubscriptionDetails struct {
	Plan      Plan      `json:"plan"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	AutoRenew bool      `json:"autoRenew"`
	Price     float64   `json:"price"`
	Active    bool      `json:"active"`
}

// DaysRemaining returns the whole days left until EndDate, rounded up.
func (s SubscriptionDetails) DaysRemaining(now time.Time) int {
	if !s.Active || !s.EndDate.After(now) {
		return 0
	}
	d := s.EndDate.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
