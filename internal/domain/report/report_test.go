package report

import (
	"testing"
	"time"
)

func TestCivilDate_FixedOffset(t *testing.T) {
	tests := []struct {
		name    string
		instant time.Time
		date    string
		hour    int
	}{
		{"before regional midnight", time.Date(2026, 3, 1, 18, 29, 0, 0, time.UTC), "2026-03-01", 23},
		{"at regional midnight", time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC), "2026-03-02", 0},
		{"afternoon", time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), "2026-03-01", 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CivilDate(tt.instant); got != tt.date {
				t.Errorf("CivilDate = %s, want %s", got, tt.date)
			}
			if got := CivilHour(tt.instant); got != tt.hour {
				t.Errorf("CivilHour = %d, want %d", got, tt.hour)
			}
		})
	}
}

func TestCivilDate_IgnoresHostZone(t *testing.T) {
	instant := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tz database not available")
	}
	if CivilDate(instant) != CivilDate(instant.In(ny)) {
		t.Error("civil date depends on the zone of the input instant")
	}
}

func TestTaskTypeSubmissions(t *testing.T) {
	if !TaskAudio.AcceptsAudio() || TaskAudio.AcceptsImage() {
		t.Error("audio task must accept audio only")
	}
	for _, tt := range []TaskType{TaskWriting, TaskListening} {
		if tt.AcceptsAudio() || !tt.AcceptsImage() {
			t.Errorf("%s task must accept images only", tt)
		}
	}
	if _, ok := ParseTaskType("painting"); ok {
		t.Error("unknown task type parsed")
	}
}

func TestDailyReport_Completed(t *testing.T) {
	var nilReport *DailyReport
	if nilReport.Completed("1") {
		t.Error("nil report has no completions")
	}
	r := &DailyReport{TaskReport: []Entry{{PhoneNumber: "1", IsCompleted: true}, {PhoneNumber: "2"}}}
	if !r.Completed("1") || r.Completed("2") || r.Completed("3") {
		t.Error("Completed mismatch")
	}
}
