package noteservice

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/attachment"
	"github.com/starford/tirelire/internal/database"
	"github.com/starford/tirelire/internal/envelope"
	"github.com/starford/tirelire/internal/events"
	"github.com/starford/tirelire/internal/storage"
	"github.com/starford/tirelire/internal/testutil"
)

type recorder struct{ got []events.Change }

func (r *recorder) PublishChange(_ context.Context, c events.Change) { r.got = append(r.got, c) }

type fixture struct {
	svc   *Service
	db    *database.DB
	store *storage.FS
	rec   *recorder
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.TestDB(t)
	_, store := testutil.TestUploads(t)
	logger := testutil.Logger()
	rec := &recorder{}
	svc := NewService(db, store, attachment.NewReconciler(store, logger), rec, logger)
	return fixture{svc: svc, db: db, store: store, rec: rec}
}

func encode(t *testing.T, html string, atts ...attachment.Attachment) string {
	t.Helper()
	s, err := envelope.Encode(envelope.Envelope{HTML: html, Attachments: atts})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func inline(name string, data string) attachment.Attachment {
	return attachment.Attachment{
		Name:    name,
		Type:    "image/png",
		DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(data)),
	}
}

func noteFiles(t *testing.T, store *storage.FS, id int64) []storage.FileInfo {
	t.Helper()
	files, err := store.List(attachment.NoteDir(id))
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestCreateNote_InlineAttachment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	d, err := f.svc.CreateNote(ctx, encode(t, "<h1>Receipt</h1><p>#tax</p>", inline("scan.png", "png-bytes")))
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if d.Format != envelope.RichV2 || d.Title != "Receipt" {
		t.Errorf("detail = %+v", d)
	}
	if len(d.Tags) != 1 || d.Tags[0] != "tax" {
		t.Errorf("tags = %v", d.Tags)
	}
	if len(d.Attachments) != 1 {
		t.Fatalf("attachments = %+v", d.Attachments)
	}
	a := d.Attachments[0]
	if a.DataURL != "" || a.ID == "" || a.Size != int64(len("png-bytes")) {
		t.Errorf("attachment = %+v", a)
	}
	if !strings.HasPrefix(a.StoragePath, attachment.NoteDir(d.ID)+"/") || a.URL != "/uploads/"+a.StoragePath {
		t.Errorf("paths = %q %q", a.StoragePath, a.URL)
	}
	if files := noteFiles(t, f.store, d.ID); len(files) != 1 || files[0].Path != a.StoragePath {
		t.Errorf("files = %+v", files)
	}
	if len(f.rec.got) != 1 || f.rec.got[0].Kind != events.Created {
		t.Errorf("events = %+v", f.rec.got)
	}
}

func TestCreateNote_PendingUpload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tmp := attachment.TempPath("up-1", ".pdf")
	if err := f.store.Write(tmp, []byte("%PDF")); err != nil {
		t.Fatal(err)
	}

	d, err := f.svc.CreateNote(ctx, encode(t, "bill", attachment.Attachment{
		ID: "up-1", Name: "bill.pdf", Type: "application/pdf", Size: 4, StoragePath: tmp, IsTemp: true,
	}))
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if got := d.Attachments[0].StoragePath; got != attachment.NoteDir(d.ID)+"/up-1.pdf" {
		t.Errorf("storagePath = %q", got)
	}
	if ok, _ := f.store.Exists(tmp); ok {
		t.Error("temp upload should have been moved")
	}
}

func TestCreateNote_FailureRemovesRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateNote(ctx, encode(t, "x", attachment.Attachment{
		ID: "gone", Name: "a.txt", StoragePath: attachment.TempPath("gone", ".txt"), IsTemp: true,
	}))
	if !errors.Is(err, attachment.ErrTempMissing) {
		t.Fatalf("err = %v, want ErrTempMissing", err)
	}
	notes, err := f.svc.ListNotes(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("notes = %d, want 0", len(notes))
	}
}

func TestGetNote_LegacyContent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		format  envelope.Format
	}{
		{name: "plain", content: "milk and eggs", format: envelope.LegacyPlain},
		{name: "html", content: "<p>milk</p>", format: envelope.LegacyHTML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := f.db.InsertNote(ctx, database.NoteRow{Content: tt.content})
			if err != nil {
				t.Fatal(err)
			}
			d, err := f.svc.GetNote(ctx, id)
			if err != nil {
				t.Fatalf("GetNote: %v", err)
			}
			if d.Format != tt.format || d.HTML != tt.content || len(d.Attachments) != 0 {
				t.Errorf("detail = %+v", d)
			}
			want := encode(t, tt.content)
			if d.Content != want {
				t.Errorf("content = %s, want %s", d.Content, want)
			}
			if d.Checksum != Checksum(tt.content) {
				t.Error("checksum must cover the stored content")
			}
		})
	}
}

func TestUpdateNote_IfMatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.svc.CreateNote(ctx, encode(t, "v1"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.UpdateNote(ctx, d.ID, encode(t, "v2"), "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale If-Match err = %v", err)
	}
	u, err := f.svc.UpdateNote(ctx, d.ID, encode(t, "v2"), d.Checksum)
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if u.HTML != "v2" || u.Checksum == d.Checksum {
		t.Errorf("updated = %+v", u)
	}
	if _, err := f.svc.UpdateNote(ctx, d.ID, encode(t, "v3"), ""); err != nil {
		t.Errorf("unguarded update: %v", err)
	}
	if _, err := f.svc.UpdateNote(ctx, 999, encode(t, "x"), ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note err = %v", err)
	}
}

func TestUpdateNote_RemovesDroppedAttachment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.svc.CreateNote(ctx, encode(t, "x", inline("a.png", "a"), inline("b.png", "b")))
	if err != nil {
		t.Fatal(err)
	}
	keep := d.Attachments[0]

	u, err := f.svc.UpdateNote(ctx, d.ID, encode(t, "x", keep), "")
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if len(u.Attachments) != 1 || u.Attachments[0].ID != keep.ID {
		t.Errorf("attachments = %+v", u.Attachments)
	}
	if files := noteFiles(t, f.store, d.ID); len(files) != 1 || files[0].Path != keep.StoragePath {
		t.Errorf("files = %+v", files)
	}
}

func TestUpdateNote_ResaveIsStable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.svc.CreateNote(ctx, encode(t, "x", inline("a.png", "a")))
	if err != nil {
		t.Fatal(err)
	}
	u, err := f.svc.UpdateNote(ctx, d.ID, d.Content, d.Checksum)
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if u.Content != d.Content || u.Checksum != d.Checksum {
		t.Errorf("resave changed content:\n%s\n%s", d.Content, u.Content)
	}
}

func TestDeleteNote_RemovesBlobs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d, err := f.svc.CreateNote(ctx, encode(t, "x", inline("a.png", "a"), inline("b.png", "b")))
	if err != nil {
		t.Fatal(err)
	}
	// One blob vanishes behind our back; deletion still succeeds.
	if _, err := f.store.Delete(d.Attachments[1].StoragePath); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteNote(ctx, d.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if files := noteFiles(t, f.store, d.ID); len(files) != 0 {
		t.Errorf("files left = %+v", files)
	}
	if _, err := f.svc.GetNote(ctx, d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetNote after delete err = %v", err)
	}
	if err := f.svc.DeleteNote(ctx, d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestListNotes_Search(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	want, _ := f.svc.CreateNote(ctx, encode(t, "<p>car insurance renewal</p>"))
	_, _ = f.svc.CreateNote(ctx, encode(t, "<p>groceries</p>"))

	got, err := f.svc.ListNotes(ctx, ListOptions{Search: "insurance"})
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(got) != 1 || got[0].ID != want.ID {
		t.Errorf("got = %+v", got)
	}

	all, _ := f.svc.ListNotes(ctx, ListOptions{})
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
}
