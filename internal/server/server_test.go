package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/queue"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *queue.MemoryStore) {
	t.Helper()
	store := queue.NewMemoryStore()
	srv := httptest.NewServer(New(store, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func enqueueTestItem(t *testing.T, store queue.Store, email string) *queue.Item {
	t.Helper()
	item := &queue.Item{
		RecipientEmail:   email,
		RecipientName:    "Alice",
		Subject:          "Your Certificate - Go 101",
		Message:          "Dear Alice,",
		CertificateImage: "data:image/png;base64,aGVsbG8=",
	}
	if err := store.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return item
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestListQueue(t *testing.T) {
	srv, store := newTestServer(t)
	enqueueTestItem(t, store, "a@example.com")
	item := enqueueTestItem(t, store, "b@example.com")
	if err := store.UpdateStatus(context.Background(), item.ID, queue.StatusSent, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/queue", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[struct {
		Items []queue.Item `json:"items"`
		Count int          `json:"count"`
	}](t, resp)
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/queue?status=sent", nil)
	filtered := decodeBody[struct {
		Items []queue.Item `json:"items"`
	}](t, resp)
	if len(filtered.Items) != 1 || filtered.Items[0].RecipientEmail != "b@example.com" {
		t.Errorf("filtered = %+v", filtered.Items)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/queue?status=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d, want 400", resp.StatusCode)
	}
}

func TestListQueueSearchAndDates(t *testing.T) {
	srv, store := newTestServer(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, email := range []string{"ada@example.com", "grace@other.org"} {
		item := &queue.Item{
			RecipientEmail:   email,
			RecipientName:    "Recipient",
			Subject:          "Your Certificate - Go 101",
			Message:          "Dear Recipient,",
			CertificateImage: "data:image/png;base64,aGVsbG8=",
			CreatedAt:        base.AddDate(0, 0, i),
		}
		if err := store.Enqueue(context.Background(), item); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/queue?search=ada", nil)
	body := decodeBody[struct {
		Items []queue.Item `json:"items"`
	}](t, resp)
	if len(body.Items) != 1 || body.Items[0].RecipientEmail != "ada@example.com" {
		t.Errorf("search = %+v", body.Items)
	}

	from := base.AddDate(0, 0, 1).Format(time.RFC3339)
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/queue?from="+url.QueryEscape(from), nil)
	body = decodeBody[struct {
		Items []queue.Item `json:"items"`
	}](t, resp)
	if len(body.Items) != 1 || body.Items[0].RecipientEmail != "grace@other.org" {
		t.Errorf("from filter = %+v", body.Items)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/queue?from=yesterday", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad from = %d, want 400", resp.StatusCode)
	}
}

func TestEnqueue(t *testing.T) {
	srv, store := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/queue", map[string]string{
		"recipientEmail":   "alice@example.com",
		"recipientName":    "Alice",
		"subject":          "Your Certificate - Go 101",
		"message":          "Dear Alice,",
		"certificateImage": "data:image/png;base64,aGVsbG8=",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	created := decodeBody[queue.Item](t, resp)
	if created.ID == "" || created.Status != queue.StatusPending {
		t.Errorf("created = %+v", created)
	}
	if _, err := store.Get(context.Background(), created.ID); err != nil {
		t.Errorf("item not stored: %v", err)
	}
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []map[string]string{
		{"recipientEmail": "nope", "certificateImage": "data:image/png;base64,aGVsbG8="},
		{"recipientEmail": "a@b.com"}, // no image
	}
	for _, body := range tests {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/queue", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d for %v, want 400", resp.StatusCode, body)
		}
	}
}

func TestGetUpdateDeleteItem(t *testing.T) {
	srv, store := newTestServer(t)
	item := enqueueTestItem(t, store, "alice@example.com")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/queue/"+item.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/queue/"+item.ID, map[string]string{"status": "pending"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	updated := decodeBody[queue.Item](t, resp)
	if updated.Status != queue.StatusPending {
		t.Errorf("status = %q", updated.Status)
	}

	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/queue/"+item.ID, map[string]string{"status": "bogus"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status patch = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/queue/"+item.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/queue/"+item.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	srv, store := newTestServer(t)
	enqueueTestItem(t, store, "a@example.com")
	enqueueTestItem(t, store, "b@example.com")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/queue/stats", nil)
	stats := decodeBody[queue.Stats](t, resp)
	if stats.Total != 2 || stats.Pending != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSendWithoutWebhook(t *testing.T) {
	srv, store := newTestServer(t)
	enqueueTestItem(t, store, "a@example.com")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/queue/send", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestSendDrainsPending(t *testing.T) {
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer webhook.Close()

	store := queue.NewMemoryStore()
	sender := queue.NewSender(store, queue.NewWebhook(webhook.URL), 0)
	srv := httptest.NewServer(New(store, WithSender(sender)).Handler())
	defer srv.Close()

	enqueueTestItem(t, store, "a@example.com")
	enqueueTestItem(t, store, "b@example.com")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/queue/send", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	report := decodeBody[queue.SendReport](t, resp)
	if report.Sent != 2 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Sent != 2 || stats.Pending != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPreview(t *testing.T) {
	srv, _ := newTestServer(t)

	bg := imaging.New(30, 20, color.NRGBA{R: 250, G: 250, B: 250, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, bg, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	bgRef := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	req := map[string]any{
		"design": cert.Design{
			Template: cert.CertificateTemplate{
				ID:              "t1",
				BackgroundImage: bgRef,
				Width:           30,
				Height:          20,
			},
			TextElements: []cert.TextElement{{
				ID:        "name",
				Text:      "{{name}}",
				Position:  cert.Position{X: 15, Y: 4},
				FontSize:  6,
				Color:     "#000000",
				TextAlign: cert.AlignCenter,
			}},
		},
		"recipient": cert.Recipient{Name: "Alice", Email: "alice@example.com"},
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/preview", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 20 {
		t.Errorf("bounds = %v", b)
	}
}

func TestPreviewInvalidDesign(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/preview", map[string]any{
		"design": cert.Design{Template: cert.CertificateTemplate{Width: 0, Height: 10, BackgroundImage: "x"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["code"] == "" {
		t.Errorf("error body = %v, want a code", body)
	}
}

func TestErrorBodyShape(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/queue/missing-id", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["code"] != "NOT_FOUND" {
		t.Errorf("code = %q", body["code"])
	}
	if body["error"] == "" {
		t.Error("error message missing")
	}
}
