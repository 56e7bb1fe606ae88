package webdav

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/transport"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/webdav/webdavtest"
)

func newTestClient(t *testing.T) (*Client, *webdavtest.Server) {
	t.Helper()
	srv := webdavtest.New("alice", "s3cret")
	t.Cleanup(srv.Close)
	return New(transport.New(transport.WithoutProxies()), "alice", "s3cret"), srv
}

func TestEnsureFolderCreatesMissing(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	created, err := c.EnsureFolder(ctx, srv.URL+"/TaskFuchs")
	if err != nil {
		t.Fatalf("EnsureFolder: %v", err)
	}
	if !created {
		t.Error("expected folder to be created")
	}
	if srv.Calls("MKCOL") != 1 {
		t.Errorf("MKCOL calls: got %d, want 1", srv.Calls("MKCOL"))
	}

	created, err = c.EnsureFolder(ctx, srv.URL+"/TaskFuchs")
	if err != nil {
		t.Fatalf("second EnsureFolder: %v", err)
	}
	if created {
		t.Error("existing folder should not be recreated")
	}
	if srv.Calls("MKCOL") != 1 {
		t.Errorf("MKCOL calls after second ensure: got %d, want 1", srv.Calls("MKCOL"))
	}
}

func TestEnsureFolderIndeterminateStatus(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddHook(func(r *http.Request) int {
		if r.Method == "PROPFIND" {
			return http.StatusInternalServerError
		}
		return 0
	})

	_, err := c.EnsureFolder(context.Background(), srv.URL+"/TaskFuchs")
	if err == nil {
		t.Fatal("expected error for 500 on PROPFIND")
	}
	if transport.StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("status: got %d", transport.StatusCode(err))
	}
	if srv.Calls("MKCOL") != 0 {
		t.Error("MKCOL must not be attempted when folder state is unknown")
	}
}

func TestEnsureFolderMkcolFailure(t *testing.T) {
	c, srv := newTestClient(t)

	// parent does not exist, so MKCOL answers 409
	_, err := c.EnsureFolder(context.Background(), srv.URL+"/a/b")
	if err == nil {
		t.Fatal("expected error")
	}
	if transport.StatusCode(err) != http.StatusConflict {
		t.Errorf("status: got %d, want 409", transport.StatusCode(err))
	}
}

func TestPutGetDelete(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	url := srv.URL + "/data.json"

	resp, err := c.Put(ctx, url, []byte(`{"ok":true}`))
	if err != nil || !resp.OK() {
		t.Fatalf("Put: %v %v", resp, err)
	}

	resp, err = c.Get(ctx, url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("body: got %q", resp.Body)
	}

	if resp, err = c.Delete(ctx, url); err != nil || !resp.OK() {
		t.Fatalf("Delete: %v %v", resp, err)
	}
	resp, err = c.Get(ctx, url)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if !errors.Is(resp.Err(), transport.ErrNotFound) {
		t.Errorf("expected not found, got %v", resp.Err())
	}
}

func TestBadCredentials(t *testing.T) {
	srv := webdavtest.New("alice", "s3cret")
	defer srv.Close()
	c := New(transport.New(transport.WithoutProxies()), "alice", "wrong")

	resp, err := c.Propfind(context.Background(), srv.URL+"/", "0")
	if err != nil {
		t.Fatalf("Propfind: %v", err)
	}
	if !errors.Is(resp.Err(), transport.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %d", resp.StatusCode)
	}
}

func TestList(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	srv.MakeFolder("/TaskFuchs")
	for _, name := range []string{"taskfuchs-data.json", "taskfuchs-backup-2025-03-10.json", "notes.txt"} {
		if _, err := c.Put(ctx, srv.URL+"/TaskFuchs/"+name, []byte("{}")); err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}

	names, err := c.List(ctx, srv.URL+"/TaskFuchs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %v, want 2 json files", names)
	}
	if names[0] != "taskfuchs-backup-2025-03-10.json" || names[1] != "taskfuchs-data.json" {
		t.Errorf("names: got %v", names)
	}
}

func TestParseMultistatusFallsBackToHref(t *testing.T) {
	body := `<d:multistatus xmlns:d="DAV:"><d:response>
		<d:href>/dav/files/alice/TaskFuchs/my%20file.json</d:href>
		<d:propstat><d:prop><d:getcontentlength>12</d:getcontentlength></d:prop>
		<d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response></d:multistatus>`

	entries, err := parseMultistatus([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d", len(entries))
	}
	if entries[0].Name != "my file.json" {
		t.Errorf("name: got %q", entries[0].Name)
	}
	if entries[0].Size != 12 {
		t.Errorf("size: got %d", entries[0].Size)
	}
}
