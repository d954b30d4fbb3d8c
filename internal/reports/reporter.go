package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helpinghand/relay/internal/graph"
	"github.com/helpinghand/relay/internal/persona"
)

// Uploader puts a file on the company drive.
type Uploader interface {
	UploadFile(ctx context.Context, token, siteID, folder, filename, contentType string, data []byte) (*graph.DriveItem, error)
}

// Sender posts the follow-up message carrying the document link.
type Sender interface {
	SendMessage(ctx context.Context, token, chatID, content string) (string, error)
}

// Tokens issues the upload-scoped token for the authoring persona.
type Tokens interface {
	UserToken(ctx context.Context, personaKey, email, scopes string) (string, error)
}

// Reporter runs the document flow after a persona's conversational reply:
// detect the request, build the report, upload it, and post the link.
type Reporter struct {
	uploader Uploader
	sender   Sender
	tokens   Tokens
	siteID   string
	folder   string
	now      func() time.Time
}

// NewReporter wires a reporter. folder defaults to the drive's shared
// documents area when empty.
func NewReporter(uploader Uploader, sender Sender, tokens Tokens, siteID, folder string) *Reporter {
	if folder == "" {
		folder = "Shared Documents"
	}
	return &Reporter{
		uploader: uploader,
		sender:   sender,
		tokens:   tokens,
		siteID:   siteID,
		folder:   folder,
		now:      time.Now,
	}
}

// Configured reports whether uploads can actually reach a drive.
func (r *Reporter) Configured() bool {
	return r.siteID != ""
}

// MaybeFollowUp checks whether the message asked the persona to write and
// share a document, and if so produces it. Silent when the message asks
// for something else, the persona lacks the capability, or no drive is
// configured; upload failures produce an apologetic follow-up instead of
// an error so the chat never sees a stack of silence.
func (r *Reporter) MaybeFollowUp(ctx context.Context, p *persona.Persona, userToken, chatID, requestText string) {
	action, keywords := Detect(requestText)
	if action != ActionDocumentWriting || !p.Can("document_writing") || !WantsShare(requestText) {
		return
	}
	if !r.Configured() {
		slog.Debug("document requested but no drive site configured", "persona", p.Key)
		return
	}
	slog.Info("document action detected", "persona", p.Key, "keywords", keywords)

	now := r.now()
	title := TitleFor(requestText)
	content := Build(title, p, requestText, now)
	filename := Filename(title, now)

	token, err := r.tokens.UserToken(ctx, p.Key, p.Email, graph.UploadScopes)
	if err != nil {
		slog.Error("upload token failed", "persona", p.Key, "error", err)
		r.sendFollowUp(ctx, userToken, chatID, "I wrote the document but couldn't get access to the drive.")
		return
	}

	item, err := r.uploader.UploadFile(ctx, token, r.siteID, r.folder, filename, "text/markdown", content)
	if err != nil {
		slog.Error("report upload failed", "persona", p.Key, "file", filename, "error", err)
		r.sendFollowUp(ctx, userToken, chatID, "I wrote the document but couldn't upload it.")
		return
	}

	link := item.WebURL
	if link == "" {
		link = "check " + r.folder
	}
	slog.Info("report uploaded", "persona", p.Key, "file", filename, "url", item.WebURL)
	r.sendFollowUp(ctx, userToken, chatID, fmt.Sprintf("Done. I put it on the drive: %s", link))
}

func (r *Reporter) sendFollowUp(ctx context.Context, token, chatID, text string) {
	if _, err := r.sender.SendMessage(ctx, token, chatID, text); err != nil {
		slog.Error("follow-up send failed", "chat", chatID, "error", err)
	}
}
