package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"driveshare/config"
	"driveshare/core/appbootstrap"
	"driveshare/core/auth"
	"driveshare/core/mail"
	"driveshare/core/store"
	"driveshare/core/store/storetest"
	"driveshare/core/utils"
)

type apiEnv struct {
	t       *testing.T
	cfg     *config.AppConfig
	db      *store.DB
	handler http.Handler
	mails   *mail.Recorder
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	cfg := storetest.Config(t)
	db := storetest.Open(t, cfg)
	mails := &mail.Recorder{}
	rt, err := appbootstrap.Compose(context.Background(), cfg, db, utils.NewNopLogger(), appbootstrap.Options{Mailer: mails})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return &apiEnv{t: t, cfg: cfg, db: db, handler: rt.Server.Handler(), mails: mails}
}

func (e *apiEnv) token(u *store.User) string {
	e.t.Helper()
	tok, err := auth.Issue(e.cfg.Auth.JWTSecret, "", u.ID, time.Hour)
	if err != nil {
		e.t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *apiEnv) do(method, path, token, org string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if org != "" {
		req.Header.Set(e.cfg.Auth.OrgHeader, org)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *apiEnv) doJSON(method, path, token string, payload any) *httptest.ResponseRecorder {
	e.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	return e.do(method, path, token, "", body, "application/json")
}

func (e *apiEnv) upload(path, token string, fields map[string]string, name, contentType string, data []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			e.t.Fatalf("field %s: %v", k, err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		e.t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	if err := mw.Close(); err != nil {
		e.t.Fatalf("close multipart: %v", err)
	}
	return e.do(http.MethodPost, path, token, "", &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t)
	rr := env.do(http.MethodGet, "/healthz", "", "", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers on every response")
	}
}

func TestDocumentsRequireSession(t *testing.T) {
	env := newAPIEnv(t)
	rr := env.do(http.MethodGet, "/api/documents/", "", "", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
	if got := decode[map[string]string](t, rr)["error"]; got != "unauthorized" {
		t.Fatalf("unexpected error body %q", got)
	}
}

func TestUploadListAndDownload(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	tok := env.token(ada)

	rr := env.upload("/api/documents/", tok, nil, "notes.txt", "text/plain", []byte("hello drive"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	doc := decode[store.Document](t, rr)
	if doc.ID == "" || doc.Size != int64(len("hello drive")) || doc.CreatedBy != ada.ID {
		t.Fatalf("unexpected document %+v", doc)
	}

	rr = env.do(http.MethodGet, "/api/documents/", tok, "", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	list := decode[struct{ Items []store.Document }](t, rr)
	if len(list.Items) != 1 || list.Items[0].ID != doc.ID {
		t.Fatalf("expected the uploaded document, got %+v", list.Items)
	}

	rr = env.do(http.MethodGet, "/api/documents/"+doc.ID, tok, "", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get url: %d %s", rr.Code, rr.Body.String())
	}
	url := decode[map[string]string](t, rr)["url"]
	if !strings.HasPrefix(url, "/api/blobs/") {
		t.Fatalf("unexpected url %q", url)
	}
	rr = env.do(http.MethodGet, url, "", "", nil, "")
	if rr.Code != http.StatusOK || rr.Body.String() != "hello drive" {
		t.Fatalf("blob fetch: %d %q", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/api/settings", tok, "", nil, "")
	settings := decode[store.UserSettings](t, rr)
	if settings.Space.Used != int64(len("hello drive")) {
		t.Fatalf("expected quota usage, got %+v", settings.Space)
	}
}

func TestUploadWithoutFileIsRejected(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("folder", "")
	_ = mw.Close()
	rr := env.do(http.MethodPost, "/api/documents/", env.token(ada), "", &buf, mw.FormDataContentType())
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestStrangerCannotReadDocument(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	bob := storetest.User(t, env.db, "bob@example.com")
	doc := decode[store.Document](t, env.upload("/api/documents/", env.token(ada), nil, "a.txt", "text/plain", []byte("x")))

	if rr := env.do(http.MethodGet, "/api/documents/"+doc.ID, env.token(bob), "", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected denial for stranger, got %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/documents/"+doc.ID, "", "", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected denial for anonymous caller, got %d", rr.Code)
	}
	if rr := env.do(http.MethodDelete, "/api/documents/"+doc.ID, env.token(bob), "", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected delete denial for stranger, got %d", rr.Code)
	}
}

func TestFolderShareReachesDocuments(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	bob := storetest.User(t, env.db, "bob@example.com")
	adaTok, bobTok := env.token(ada), env.token(bob)

	rr := env.doJSON(http.MethodPost, "/api/folders/", adaTok, map[string]string{"name": "Reports"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create folder: %d %s", rr.Code, rr.Body.String())
	}
	folder := decode[store.Folder](t, rr)
	rr = env.doJSON(http.MethodPost, "/api/folders/", adaTok, map[string]string{"name": "2024", "parent": folder.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create child: %d %s", rr.Code, rr.Body.String())
	}
	child := decode[store.Folder](t, rr)
	doc := decode[store.Document](t, env.upload("/api/documents/", adaTok, map[string]string{"folder": child.ID}, "q1.txt", "text/plain", []byte("q1")))

	rr = env.doJSON(http.MethodPut, "/api/share/folder/"+folder.ID, bobTok, map[string]any{
		"recipients": []store.Recipient{{User: bob.ID}},
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("non-owner must not edit shares, got %d", rr.Code)
	}

	rr = env.doJSON(http.MethodPut, "/api/share/folder/"+folder.ID, adaTok, map[string]any{
		"recipients": []store.Recipient{{User: bob.ID, Level: store.LevelFull}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("share folder: %d %s", rr.Code, rr.Body.String())
	}
	if !decode[map[string]any](t, rr)["isShared"].(bool) {
		t.Fatalf("expected folder to be shared")
	}

	rr = env.do(http.MethodGet, "/api/share/folders", bobTok, "", nil, "")
	shared := decode[struct{ Items []store.Folder }](t, rr)
	if len(shared.Items) != 1 || shared.Items[0].ID != folder.ID {
		t.Fatalf("expected only the shared root folder, got %+v", shared.Items)
	}
	if rr := env.do(http.MethodGet, "/api/documents/"+doc.ID, bobTok, "", nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("share should reach documents below the folder, got %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/folders/"+child.ID+"/documents", bobTok, "", nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("share should reach child folders, got %d", rr.Code)
	}
	if rr := env.do(http.MethodDelete, "/api/documents/"+doc.ID, bobTok, "", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("shares grant read only, got %d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/api/share/document/"+doc.ID, adaTok, "", nil, "")
	rows := decode[struct{ Items []store.Share }](t, rr)
	if len(rows.Items) != 1 || rows.Items[0].SharedTo.Level != store.LevelRead {
		t.Fatalf("expected one inherited READ share, got %+v", rows.Items)
	}

	rr = env.doJSON(http.MethodPut, "/api/share/folder/"+folder.ID, adaTok, map[string]any{"recipients": []store.Recipient{}})
	if rr.Code != http.StatusOK {
		t.Fatalf("unshare: %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/documents/"+doc.ID, bobTok, "", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unsharing the folder should revoke the document, got %d", rr.Code)
	}
}

func TestSubfolderOfSharedFolderInheritsShares(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	bob := storetest.User(t, env.db, "bob@example.com")
	adaTok, bobTok := env.token(ada), env.token(bob)

	rr := env.doJSON(http.MethodPost, "/api/folders/", adaTok, map[string]string{"name": "Projects"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create folder: %d %s", rr.Code, rr.Body.String())
	}
	parent := decode[store.Folder](t, rr)
	rr = env.doJSON(http.MethodPut, "/api/share/folder/"+parent.ID, adaTok, map[string]any{
		"recipients": []store.Recipient{{User: bob.ID}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("share folder: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.doJSON(http.MethodPost, "/api/folders/", adaTok, map[string]string{"name": "Later", "parent": parent.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create subfolder: %d %s", rr.Code, rr.Body.String())
	}
	sub := decode[store.Folder](t, rr)
	doc := decode[store.Document](t, env.upload("/api/documents/", adaTok, map[string]string{"folder": sub.ID}, "x.txt", "text/plain", []byte("x")))

	rr = env.do(http.MethodGet, "/api/share/folder/"+sub.ID, adaTok, "", nil, "")
	rows := decode[struct{ Items []store.Share }](t, rr)
	if len(rows.Items) != 1 || rows.Items[0].SharedTo.User != bob.ID {
		t.Fatalf("expected the parent's share on the new subfolder, got %+v", rows.Items)
	}
	if rr := env.do(http.MethodGet, "/api/folders/"+sub.ID, bobTok, "", nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("recipient should read the new subfolder, got %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/documents/"+doc.ID, bobTok, "", nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("recipient should read documents in the new subfolder, got %d", rr.Code)
	}
}

func TestShareableLinkAllowsAnonymousRead(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	adaTok := env.token(ada)
	doc := decode[store.Document](t, env.upload("/api/documents/", adaTok, nil, "pub.txt", "text/plain", []byte("pub")))

	rr := env.doJSON(http.MethodPut, "/api/share/document/"+doc.ID, adaTok, map[string]any{
		"recipients": []store.Recipient{{ShareableLink: true}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("share link: %d %s", rr.Code, rr.Body.String())
	}
	rr = env.do(http.MethodGet, "/api/documents/"+doc.ID+"?download=true", "", "", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("anonymous read through link: %d %s", rr.Code, rr.Body.String())
	}
	if url := decode[map[string]string](t, rr)["url"]; !strings.Contains(url, "download=1") {
		t.Fatalf("expected a download url, got %q", url)
	}
}

func TestEmailShareSendsMailAndClaims(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	adaTok := env.token(ada)
	doc := decode[store.Document](t, env.upload("/api/documents/", adaTok, nil, "memo.txt", "text/plain", []byte("memo")))

	rr := env.doJSON(http.MethodPut, "/api/share/document/"+doc.ID, adaTok, map[string]any{
		"recipients": []store.Recipient{{Email: "carol@example.com"}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("share by email: %d %s", rr.Code, rr.Body.String())
	}
	if len(env.mails.Messages()) != 1 {
		t.Fatalf("expected one notification, got %d", len(env.mails.Messages()))
	}

	carol := storetest.User(t, env.db, "carol@example.com")
	carolTok := env.token(carol)
	if rr := env.do(http.MethodPost, "/api/share/claim", carolTok, "", nil, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("claim: %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/documents/"+doc.ID, carolTok, "", nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("claimed share should grant read, got %d", rr.Code)
	}
}

func TestRenameAndDeleteDocument(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	tok := env.token(ada)
	doc := decode[store.Document](t, env.upload("/api/documents/", tok, nil, "draft.txt", "text/plain", []byte("draft")))

	rr := env.doJSON(http.MethodPut, "/api/documents/"+doc.ID, tok, map[string]string{"name": "final.txt"})
	if rr.Code != http.StatusOK {
		t.Fatalf("rename: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[store.Document](t, rr).Name; got != "final.txt" {
		t.Fatalf("expected renamed document, got %q", got)
	}
	if rr := env.do(http.MethodDelete, "/api/documents/"+doc.ID, tok, "", nil, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/documents/"+doc.ID, tok, "", nil, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected not found after delete, got %d", rr.Code)
	}
}

func TestFolderDeleteAndAncestors(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	tok := env.token(ada)
	root := decode[store.Folder](t, env.doJSON(http.MethodPost, "/api/folders/", tok, map[string]string{"name": "A"}))
	mid := decode[store.Folder](t, env.doJSON(http.MethodPost, "/api/folders/", tok, map[string]string{"name": "B", "parent": root.ID}))
	leaf := decode[store.Folder](t, env.doJSON(http.MethodPost, "/api/folders/", tok, map[string]string{"name": "C", "parent": mid.ID}))

	rr := env.do(http.MethodGet, "/api/folders/"+leaf.ID+"/ancestors", tok, "", nil, "")
	path := decode[struct{ Items []store.Folder }](t, rr)
	if len(path.Items) != 2 || path.Items[0].ID != root.ID || path.Items[1].ID != mid.ID {
		t.Fatalf("unexpected ancestors %+v", path.Items)
	}
	rr = env.do(http.MethodGet, "/api/folders/"+root.ID+"/children", tok, "", nil, "")
	if got := decode[struct{ Items []store.Folder }](t, rr); len(got.Items) != 2 {
		t.Fatalf("expected two descendants, got %d", len(got.Items))
	}

	rr = env.doJSON(http.MethodPut, "/api/folders/"+root.ID, tok, map[string]string{"parent": leaf.ID})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("moving below itself must fail, got %d", rr.Code)
	}

	if rr := env.do(http.MethodDelete, "/api/folders/"+root.ID, tok, "", nil, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete folder: %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/folders/"+leaf.ID, tok, "", nil, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected cascade to remove the leaf, got %d", rr.Code)
	}
}

func TestACLManagementNeedsRootRole(t *testing.T) {
	env := newAPIEnv(t)
	owner := storetest.User(t, env.db, "owner@example.com", store.Role{Organization: "org-1", Role: "Owner"})
	member := storetest.User(t, env.db, "member@example.com", store.Role{Organization: "org-1", Role: "Member"})

	grant := map[string]any{"user": member.ID, "service": map[string]string{"id": "CRM", "key": "k1"}, "level": "WRITE"}
	raw, _ := json.Marshal(grant)
	rr := env.do(http.MethodPost, "/api/acl/", env.token(member), "org-1", bytes.NewReader(raw), "application/json")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("member must not manage grants, got %d", rr.Code)
	}
	rr = env.do(http.MethodPost, "/api/acl/", env.token(owner), "org-1", bytes.NewReader(raw), "application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("owner grant: %d %s", rr.Code, rr.Body.String())
	}
	created := decode[store.ACL](t, rr)
	if created.Organization != "org-1" || created.Level != store.LevelWrite {
		t.Fatalf("unexpected grant %+v", created)
	}

	rr = env.do(http.MethodGet, "/api/acl/", env.token(member), "org-1", nil, "")
	if got := decode[struct{ Items []store.ACL }](t, rr); len(got.Items) != 1 {
		t.Fatalf("member should see its grant, got %+v", got.Items)
	}
	rr = env.do(http.MethodGet, "/api/acl/access?service=CRM&key=k1&level=WRITE", env.token(member), "org-1", nil, "")
	if rr.Code != http.StatusOK || !decode[map[string]any](t, rr)["access"].(bool) {
		t.Fatalf("expected write access through the grant: %s", rr.Body.String())
	}
	if rr := env.do(http.MethodDelete, "/api/acl/"+created.ID, env.token(owner), "org-1", nil, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete grant: %d", rr.Code)
	}
}

func TestSignatureImageIsPrivate(t *testing.T) {
	env := newAPIEnv(t)
	ada := storetest.User(t, env.db, "ada@example.com")
	bob := storetest.User(t, env.db, "bob@example.com")
	png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32))

	rr := env.upload("/api/signatures/", env.token(ada), map[string]string{"name": "mine"}, "sig.png", "image/png", png)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create signature: %d %s", rr.Code, rr.Body.String())
	}
	sig := decode[store.Signature](t, rr)

	rr = env.do(http.MethodGet, "/api/signatures/"+sig.ID+"/image", env.token(ada), "", nil, "")
	if rr.Code != http.StatusOK || !bytes.Equal(rr.Body.Bytes(), png) {
		t.Fatalf("owner image: %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/signatures/"+sig.ID+"/image", env.token(bob), "", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("other users must not read the image, got %d", rr.Code)
	}
	if rr := env.do(http.MethodDelete, "/api/signatures/"+sig.ID, env.token(ada), "", nil, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete signature: %d", rr.Code)
	}
}
