package reports

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"document request", "can you write up a report on the lot", ActionDocumentWriting},
		{"share request", "upload that to sharepoint please", ActionShare},
		{"repo request", "need someone to grab that delinquent's pickup", ActionRepoWork},
		{"repair request", "the engine is broken, needs a mechanic", ActionVehicleRepair},
		{"schedule request", "set up a meeting on the calendar", ActionSchedule},
		{"nothing", "good morning everyone", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, matched := Detect(tt.message)
			if action != tt.want {
				t.Fatalf("Detect(%q) = %q (matched %v), want %q", tt.message, action, matched, tt.want)
			}
			if tt.want != "" && len(matched) == 0 {
				t.Fatal("detected action with no matched keywords")
			}
		})
	}
}

func TestDetectPicksMostMatches(t *testing.T) {
	// "write", "report", "draft", "summary" against one "share" hit.
	action, matched := Detect("write a draft report with a summary and share it")
	if action != ActionDocumentWriting {
		t.Fatalf("action = %q, want %q", action, ActionDocumentWriting)
	}
	if len(matched) < 3 {
		t.Fatalf("matched %v, want the document keywords", matched)
	}
}

func TestWantsShare(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"write it and share it", true},
		{"put it on SharePoint", true},
		{"just draft it for now", false},
	}
	for _, tt := range tests {
		if got := WantsShare(tt.message); got != tt.want {
			t.Errorf("WantsShare(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}
