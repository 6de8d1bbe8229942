package engagement_test

import (
	"errors"
	"testing"

	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/domain"
)

func levels() []domain.Level {
	return []domain.Level{
		{Level: 1, Title: "One", MinPoints: 0, MaxPoints: 99},
		{Level: 2, Title: "Two", MinPoints: 100, MaxPoints: 249},
		{Level: 3, Title: "Three", MinPoints: 250},
	}
}

func TestLevelFor(t *testing.T) {
	table, err := engagement.NewLevelTable(levels())
	if err != nil {
		t.Fatalf("NewLevelTable() error: %v", err)
	}

	tests := []struct {
		points int64
		want   int
	}{
		{-10, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{1_000_000_000, 3},
	}
	for _, tt := range tests {
		if got := table.LevelFor(tt.points).Level; got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.points, got, tt.want)
		}
	}
}

func TestLevelTable_LastLevelUnbounded(t *testing.T) {
	table, _ := engagement.NewLevelTable(levels())
	last := table.Levels()[2]
	if last.MaxPoints != domain.Unbounded {
		t.Errorf("last MaxPoints = %d, want Unbounded", last.MaxPoints)
	}
	if _, ok := table.NextLevel(last); ok {
		t.Error("NextLevel at the top returned a level")
	}
}

func TestNewLevelTable_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		levels []domain.Level
	}{
		{"empty", nil},
		{"first not zero", []domain.Level{{Level: 1, MinPoints: 10}}},
		{"gap", []domain.Level{
			{Level: 1, MinPoints: 0, MaxPoints: 99},
			{Level: 2, MinPoints: 101},
		}},
		{"overlap", []domain.Level{
			{Level: 1, MinPoints: 0, MaxPoints: 99},
			{Level: 2, MinPoints: 50},
		}},
		{"misnumbered", []domain.Level{
			{Level: 1, MinPoints: 0, MaxPoints: 99},
			{Level: 3, MinPoints: 100},
		}},
		{"inverted", []domain.Level{
			{Level: 1, MinPoints: 0, MaxPoints: 99},
			{Level: 2, MinPoints: 100, MaxPoints: 50},
			{Level: 3, MinPoints: 51},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engagement.NewLevelTable(tt.levels); !errors.Is(err, domain.ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestDetectLevelChange(t *testing.T) {
	table, _ := engagement.NewLevelTable(levels())

	if lvl, _ := table.DetectLevelChange(10, 90); lvl != nil {
		t.Errorf("same level reported change to %d", lvl.Level)
	}

	lvl, crossed := table.DetectLevelChange(50, 300)
	if lvl == nil || lvl.Level != 3 {
		t.Fatalf("DetectLevelChange(50, 300) = %+v, want level 3", lvl)
	}
	if len(crossed) != 2 || crossed[0].Level != 2 || crossed[1].Level != 3 {
		t.Errorf("crossed = %+v, want levels 2 and 3", crossed)
	}

	lvl, crossed = table.DetectLevelChange(300, 120)
	if lvl == nil || lvl.Level != 2 || len(crossed) != 0 {
		t.Errorf("down = %+v crossed %d, want level 2 and none crossed", lvl, len(crossed))
	}
}

func TestLevel_ProgressPct(t *testing.T) {
	table, _ := engagement.NewLevelTable(levels())

	if got := table.ProgressPct(0); got != 0 {
		t.Errorf("ProgressPct(0) = %.1f, want 0", got)
	}
	if got := table.ProgressPct(50); got != 50 {
		t.Errorf("ProgressPct(50) = %.1f, want 50", got)
	}
	if got := table.ProgressPct(5000); got != 100 {
		t.Errorf("ProgressPct at top = %.1f, want 100", got)
	}
	if got := table.PointsToNext(120); got != 130 {
		t.Errorf("PointsToNext(120) = %d, want 130", got)
	}
}
