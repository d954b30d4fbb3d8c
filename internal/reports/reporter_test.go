package reports

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/helpinghand/relay/internal/graph"
	"github.com/helpinghand/relay/internal/persona"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

type upload struct {
	token    string
	siteID   string
	folder   string
	filename string
	data     []byte
}

func (f *fakeUploader) UploadFile(ctx context.Context, token, siteID, folder, filename, contentType string, data []byte) (*graph.DriveItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.uploads = append(f.uploads, upload{token, siteID, folder, filename, data})
	return &graph.DriveItem{ID: "item1", Name: filename, WebURL: "https://corp.example/drive/" + filename}, nil
}

type fakeFollowSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeFollowSender) SendMessage(ctx context.Context, token, chatID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	return "sent-1", nil
}

type fakeUploadTokens struct{ err error }

func (f *fakeUploadTokens) UserToken(ctx context.Context, key, email, scopes string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "upload-token-" + key, nil
}

func writerPersona() *persona.Persona {
	return &persona.Persona{
		Key:          "bud",
		Name:         "Bud",
		Email:        "bud@corp.example",
		Capabilities: []string{"document_writing"},
	}
}

func TestMaybeFollowUpUploadsAndLinks(t *testing.T) {
	uploader := &fakeUploader{}
	sender := &fakeFollowSender{}
	r := NewReporter(uploader, sender, &fakeUploadTokens{}, "site1", "")
	r.now = func() time.Time { return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC) }

	r.MaybeFollowUp(context.Background(), writerPersona(), "chat-token", "chat1",
		"write up a maintenance report and share it on sharepoint")

	uploader.mu.Lock()
	if len(uploader.uploads) != 1 {
		t.Fatalf("%d uploads, want 1", len(uploader.uploads))
	}
	up := uploader.uploads[0]
	uploader.mu.Unlock()

	if up.siteID != "site1" {
		t.Errorf("siteID = %q", up.siteID)
	}
	if up.folder != "Shared Documents" {
		t.Errorf("folder = %q, want default", up.folder)
	}
	if up.token != "upload-token-bud" {
		t.Errorf("uploaded with token %q, want the upload-scoped persona token", up.token)
	}
	if !strings.HasPrefix(up.filename, "vehicle-maintenance-report-") {
		t.Errorf("filename = %q", up.filename)
	}
	if !strings.Contains(string(up.data), "Vehicle Maintenance Report") {
		t.Errorf("report content missing title: %s", up.data)
	}
	if !strings.Contains(string(up.data), "Bud") {
		t.Errorf("report content missing author: %s", up.data)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("%d follow-ups, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "https://corp.example/drive/") {
		t.Errorf("follow-up missing link: %q", sender.sent[0])
	}
}

func TestMaybeFollowUpSkips(t *testing.T) {
	noCapability := writerPersona()
	noCapability.Capabilities = nil

	tests := []struct {
		name    string
		persona *persona.Persona
		siteID  string
		message string
	}{
		{"not a document request", writerPersona(), "site1", "how's the weather"},
		{"no share requested", writerPersona(), "site1", "write up a report for me"},
		{"persona lacks capability", noCapability, "site1", "write a report and share it"},
		{"no drive configured", writerPersona(), "", "write a report and share it"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &fakeUploader{}
			sender := &fakeFollowSender{}
			r := NewReporter(uploader, sender, &fakeUploadTokens{}, tt.siteID, "")

			r.MaybeFollowUp(context.Background(), tt.persona, "chat-token", "chat1", tt.message)

			uploader.mu.Lock()
			defer uploader.mu.Unlock()
			if len(uploader.uploads) != 0 {
				t.Fatal("uploaded when the flow should have skipped")
			}
			sender.mu.Lock()
			defer sender.mu.Unlock()
			if len(sender.sent) != 0 {
				t.Fatal("sent a follow-up when the flow should have skipped")
			}
		})
	}
}

func TestMaybeFollowUpUploadFailure(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("drive unavailable")}
	sender := &fakeFollowSender{}
	r := NewReporter(uploader, sender, &fakeUploadTokens{}, "site1", "")

	r.MaybeFollowUp(context.Background(), writerPersona(), "chat-token", "chat1",
		"write a status report and share it")

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("%d follow-ups, want the failure notice", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "couldn't upload") {
		t.Errorf("failure notice = %q", sender.sent[0])
	}
}

func TestTitleFor(t *testing.T) {
	tests := []struct {
		request string
		want    string
	}{
		{"write a maintenance summary", "Vehicle Maintenance Report"},
		{"status update document please", "Status Report"},
		{"inventory rundown", "Inventory Report"},
		{"write something up", "Helping Hand Report"},
	}
	for _, tt := range tests {
		if got := TitleFor(tt.request); got != tt.want {
			t.Errorf("TitleFor(%q) = %q, want %q", tt.request, got, tt.want)
		}
	}
}
