package domain

import (
	"testing"
	"time"
)

func TestIdentity_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		a        [3]string // title, artist, url
		b        [3]string
		wantSame bool
	}{
		{
			name:     "identical triples collide",
			a:        [3]string{"Song X", "Artist Y", "https://example.com/watch?v=1"},
			b:        [3]string{"Song X", "Artist Y", "https://example.com/watch?v=1"},
			wantSame: true,
		},
		{
			name:     "case differences collide",
			a:        [3]string{"Song X", "Artist Y", "https://example.com/watch?v=1"},
			b:        [3]string{"SONG x", "artist y", "HTTPS://EXAMPLE.COM/watch?v=1"},
			wantSame: true,
		},
		{
			name:     "surrounding whitespace collides",
			a:        [3]string{"Song X", "Artist Y", "https://example.com/watch?v=1"},
			b:        [3]string{"  Song X ", " Artist Y", "https://example.com/watch?v=1 "},
			wantSame: true,
		},
		{
			name:     "different title differs",
			a:        [3]string{"Song X", "Artist Y", "https://example.com/watch?v=1"},
			b:        [3]string{"Song Z", "Artist Y", "https://example.com/watch?v=1"},
			wantSame: false,
		},
		{
			name:     "different source URL differs",
			a:        [3]string{"Song X", "Artist Y", "https://example.com/watch?v=1"},
			b:        [3]string{"Song X", "Artist Y", "https://example.com/watch?v=2"},
			wantSame: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idA := Identity(tt.a[0], tt.a[1], tt.a[2])
			idB := Identity(tt.b[0], tt.b[1], tt.b[2])
			if (idA == idB) != tt.wantSame {
				t.Errorf("Identity(%v) == Identity(%v): got %v, want %v",
					tt.a, tt.b, idA == idB, tt.wantSame)
			}
		})
	}
}

func TestIdentity_IsPureFunction(t *testing.T) {
	first := Identity("Song", "Artist", "https://example.com/1")
	for j := 0; j < 10; j++ {
		if got := Identity("Song", "Artist", "https://example.com/1"); got != first {
			t.Fatalf("identity not stable: got %q, want %q", got, first)
		}
	}
}

func TestNewTrack_SetsIdentity(t *testing.T) {
	tr := NewTrack("Song X", "Artist Y", 3*time.Minute, "https://example.com/watch?v=1")
	if tr.ID != Identity("Song X", "Artist Y", "https://example.com/watch?v=1") {
		t.Errorf("NewTrack did not derive ID from the normalized triple")
	}
	if !tr.IsValid() {
		t.Errorf("expected track to be valid")
	}
}

func TestTrack_FormattedDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00"},
		{"under a minute", 42 * time.Second, "00:42"},
		{"minutes", 3*time.Minute + 5*time.Second, "03:05"},
		{"hours", time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Track{Duration: tt.duration}
			if got := tr.FormattedDuration(); got != tt.want {
				t.Errorf("FormattedDuration() = %q, want %q", got, tt.want)
			}
		})
	}
}
