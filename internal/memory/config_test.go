package memory

import (
	"runtime/debug"
	"testing"
)

// restoreLimit puts the process memory limit back after a test changes it.
func restoreLimit(t *testing.T) {
	t.Helper()
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
}

func TestConfigureFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		ratio      string
		wantSource string
		wantLimit  int64
		wantRatio  float64
	}{
		{"unset", "", "", "none", 0, 0},
		{"default ratio", "1073741824", "", "MEMORY_LIMIT", 805306368, 0.75},
		{"custom ratio", "1000000", "0.5", "MEMORY_LIMIT", 500000, 0.5},
		{"ratio of one", "1000000", "1", "MEMORY_LIMIT", 1000000, 1},
		{"ratio out of range", "1000000", "1.5", "MEMORY_LIMIT", 750000, 0.75},
		{"unparseable ratio", "1000000", "half", "MEMORY_LIMIT", 750000, 0.75},
		{"unparseable limit", "lots", "", "none", 0, 0},
		{"negative limit", "-5", "", "none", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreLimit(t)
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			got := ConfigureFromEnv()
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
			if got.GoMemLimit != tt.wantLimit {
				t.Errorf("GoMemLimit = %d, want %d", got.GoMemLimit, tt.wantLimit)
			}
			if got.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %v, want %v", got.Ratio, tt.wantRatio)
			}
			if got.Configured != (tt.wantLimit > 0) {
				t.Errorf("Configured = %v", got.Configured)
			}
			if tt.wantLimit > 0 && debug.SetMemoryLimit(-1) != tt.wantLimit {
				t.Errorf("runtime limit = %d, want %d", debug.SetMemoryLimit(-1), tt.wantLimit)
			}
		})
	}
}

func TestConfigureFromEnvGOMEMLIMITWins(t *testing.T) {
	restoreLimit(t)
	debug.SetMemoryLimit(512 << 20)
	t.Setenv("GOMEMLIMIT", "512MiB")
	t.Setenv("MEMORY_LIMIT", "1073741824")

	got := ConfigureFromEnv()
	if got.Source != "GOMEMLIMIT" || got.GoMemLimit != 512<<20 {
		t.Errorf("ConfigureFromEnv() = %+v", got)
	}
	if got.ContainerLimit != 0 {
		t.Error("MEMORY_LIMIT should be ignored when GOMEMLIMIT is set")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{805306368, "768.0 MiB"},
		{1 << 30, "1.0 GiB"},
		{1 << 40, "1.0 TiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
