package mediatypes

import (
	"testing"
	"time"
)

func TestGetFileType(t *testing.T) {
	tests := []struct {
		ext  string
		want FileType
	}{
		{".jpg", FileTypeImage},
		{".webp", FileTypeImage},
		{".mp4", FileTypeVideo},
		{".webm", FileTypeVideo},
		{".mov", FileTypeVideo},
		{".svg", FileTypeOther},
		{".xyz", FileTypeOther},
		{"", FileTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := GetFileType(tt.ext); got != tt.want {
				t.Errorf("GetFileType(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestGetMimeType(t *testing.T) {
	tests := map[string]string{
		".webm": "video/webm",
		".mp4":  "video/mp4",
		".png":  "image/png",
		".xyz":  "application/octet-stream",
	}
	for ext, want := range tests {
		if got := GetMimeType(ext); got != want {
			t.Errorf("GetMimeType(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestIsCompleted(t *testing.T) {
	tests := []struct {
		elapsed, total float64
		want           bool
	}{
		{185, 200, true},
		{180, 200, true},
		{150, 200, false},
		{179.9, 200, false},
		{0, 0, false},
		{10, 0, false},
	}
	for _, tt := range tests {
		if got := IsCompleted(tt.elapsed, tt.total); got != tt.want {
			t.Errorf("IsCompleted(%v, %v) = %v, want %v", tt.elapsed, tt.total, got, tt.want)
		}
	}
}

func TestUserMembership(t *testing.T) {
	u := User{LikedVideos: []string{"a", "b"}, FavoriteVideos: []string{"c"}}
	if !u.Liked("b") || u.Liked("c") {
		t.Error("Liked() reported wrong membership")
	}
	if !u.Favorite("c") || u.Favorite("a") {
		t.Error("Favorite() reported wrong membership")
	}
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		sub  SubscriptionDetails
		want int
	}{
		{"exact days", SubscriptionDetails{Active: true, EndDate: now.Add(48 * time.Hour)}, 2},
		{"partial day rounds up", SubscriptionDetails{Active: true, EndDate: now.Add(49 * time.Hour)}, 3},
		{"expired", SubscriptionDetails{Active: true, EndDate: now.Add(-time.Hour)}, 0},
		{"inactive", SubscriptionDetails{Active: false, EndDate: now.Add(48 * time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.DaysRemaining(now); got != tt.want {
				t.Errorf("DaysRemaining() = %d, want %d", got, tt.want)
			}
		})
	}
}
