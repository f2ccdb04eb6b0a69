package storage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestJanitorNextRun(t *testing.T) {
	j, err := NewJanitor(nil, 365, "03:00", zerolog.Nop())
	if err != nil {
		t.Fatalf("new janitor: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before cleanup time",
			now:  time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at cleanup time",
			now:  time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC),
			want: time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "after cleanup time",
			now:  time.Date(2026, 10, 18, 14, 30, 0, 0, time.UTC),
			want: time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			j.now = func() time.Time { return now }
			if got := j.nextRun(); !got.Equal(tt.want) {
				t.Errorf("nextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}
