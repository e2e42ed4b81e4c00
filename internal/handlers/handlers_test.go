package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/codebuildervaibhav/case-review/internal/chat"
	"github.com/codebuildervaibhav/case-review/internal/queue"
	"github.com/codebuildervaibhav/case-review/internal/session"
	"github.com/codebuildervaibhav/case-review/internal/storage"
)

const testBundle = `{
	"files": ["interview.mp3"],
	"transcripts": {"interview.mp3": "00:00:01,000 Hello\n00:00:05,500 The car was red"},
	"summaries": {"interview.mp3": "an interview"},
	"graph": {
		"nodes": [{"id": "Car", "type": "Object"}],
		"relationships": [],
		"timecodes": {"Car": ["interview.mp3__min00_05", "other.mp3__min00_01"]}
	}
}`

type fakeCompleter struct{ reply string }

func (f fakeCompleter) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

type testServer struct {
	app   *fiber.App
	store *storage.CaseStore
	pool  *queue.WorkerPool
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewCaseStore(filepath.Join(dir, "cases.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pool := queue.NewWorkerPool(1, store)
	pool.Start()
	t.Cleanup(pool.Stop)

	audio := storage.NewLocalStorage(filepath.Join(dir, "audio"))
	svc := chat.NewServiceWithClient(fakeCompleter{reply: "It was red [interview.mp3__min00_05.txt]"}, chat.Config{})

	cases := NewCaseHandler(store, audio, 10)
	imports := NewImportHandler(pool, nil, dir, 10)
	chats := NewChatHandler(store, svc)
	review := NewReviewHandler(store, session.Config{})

	app := fiber.New()
	app.Post("/cases", cases.Create)
	app.Get("/cases", cases.List)
	app.Get("/cases/:id", cases.Get)
	app.Get("/cases/:id/status", cases.Status)
	app.Get("/cases/:id/transcripts/:filename", cases.Transcript)
	app.Get("/cases/:id/mentions/:node", cases.Mentions)
	app.Get("/cases/:id/audio/:filename", cases.Audio)
	app.Post("/cases/:id/audio", cases.UploadAudio)
	app.Post("/cases/:id/import", imports.Upload)
	app.Post("/cases/:id/import/gdrive", imports.GDrive)
	app.Get("/jobs/:id", imports.JobStatus)
	app.Post("/cases/:id/chat", chats.Handle)
	app.Get("/cases/:id/review", review.Upgrade, func(c *fiber.Ctx) error { return c.SendStatus(200) })

	return &testServer{app: app, store: store, pool: pool}
}

func (ts *testServer) do(t *testing.T, req *http.Request, wantStatus int, out any) {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d (%s)", req.Method, req.URL.Path, resp.StatusCode, wantStatus, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s: %v (%s)", body, err, body)
		}
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	part.Write(content)
	w.Close()
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// importCase creates a case and imports testBundle into it synchronously
func (ts *testServer) importCase(t *testing.T, id string) {
	t.Helper()
	ts.do(t, jsonRequest(http.MethodPost, "/cases", `{"id":"`+id+`","description":"test"}`), 201, nil)
	var job map[string]any
	ts.do(t, multipartRequest(t, "/cases/"+id+"/import", "bundle.json", []byte(testBundle)), 202, &job)
	ts.pool.Stop()

	var st map[string]any
	ts.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+job["job_id"].(string), nil), 200, &st)
	if st["status"] != queue.JobCompleted {
		t.Fatalf("job = %v", st)
	}
}

func TestCreateAndGetCase(t *testing.T) {
	ts := setupServer(t)

	var created map[string]any
	ts.do(t, jsonRequest(http.MethodPost, "/cases", `{"id":"case-1","description":"robbery"}`), 201, &created)
	if created["id"] != "case-1" || created["status"] != "created" {
		t.Fatalf("created = %v", created)
	}
	ts.do(t, jsonRequest(http.MethodPost, "/cases", `{"id":"case-1"}`), 409, nil)

	var generated map[string]any
	ts.do(t, jsonRequest(http.MethodPost, "/cases", `{}`), 201, &generated)
	if id, _ := generated["id"].(string); len(id) != 36 {
		t.Fatalf("generated id = %v", generated["id"])
	}

	var status map[string]any
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/case-1/status", nil), 200, &status)
	if status["status"] != "created" {
		t.Fatalf("status = %v", status)
	}

	var list []map[string]any
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases", nil), 200, &list)
	if len(list) != 2 {
		t.Fatalf("listed %d cases", len(list))
	}

	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/nope", nil), 404, nil)
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/nope/status", nil), 404, nil)
}

func TestImportAndReadTranscript(t *testing.T) {
	ts := setupServer(t)
	ts.importCase(t, "case-1")

	var c map[string]any
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/case-1", nil), 200, &c)
	if c["status"] != "completed" {
		t.Fatalf("case status = %v", c["status"])
	}

	var tr struct {
		Source   string                `json:"source"`
		Segments []session.SegmentView `json:"segments"`
		Active   int                   `json:"active"`
	}
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/case-1/transcripts/interview.mp3?t=5.6", nil), 200, &tr)
	if len(tr.Segments) != 2 || tr.Active != 1 {
		t.Fatalf("transcript = %+v", tr)
	}
	if tr.Segments[0].End == nil || *tr.Segments[0].End != 5.5 || tr.Segments[1].End != nil {
		t.Fatalf("segment ends = %v, %v", tr.Segments[0].End, tr.Segments[1].End)
	}
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/case-1/transcripts/interview.mp3?t=soon", nil), 400, nil)
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/case-1/transcripts/missing.mp3", nil), 404, nil)

	var mentions struct {
		Mentions []struct {
			Label string  `json:"label"`
			Time  float64 `json:"time"`
			OK    bool    `json:"ok"`
		} `json:"mentions"`
	}
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/case-1/mentions/Car", nil), 200, &mentions)
	if len(mentions.Mentions) != 2 {
		t.Fatalf("mentions = %+v", mentions)
	}
	if !mentions.Mentions[0].OK || mentions.Mentions[0].Label != "interview.mp3 - 00:05" || mentions.Mentions[0].Time != 5 {
		t.Fatalf("first mention = %+v", mentions.Mentions[0])
	}
	// other.mp3 is not part of the case
	if mentions.Mentions[1].OK || mentions.Mentions[1].Label != "other.mp3__min00_01" {
		t.Fatalf("second mention = %+v", mentions.Mentions[1])
	}
}

func TestImportUnknownCase(t *testing.T) {
	ts := setupServer(t)
	ts.do(t, multipartRequest(t, "/cases/ghost/import", "bundle.json", []byte(testBundle)), 404, nil)
	ts.do(t, httptest.NewRequest(http.MethodGet, "/jobs/none", nil), 404, nil)
}

func TestAudioUploadAndStream(t *testing.T) {
	ts := setupServer(t)
	ts.do(t, jsonRequest(http.MethodPost, "/cases", `{"id":"case-1"}`), 201, nil)

	audio := []byte("ID3 fake mp3 data")
	var up map[string]any
	ts.do(t, multipartRequest(t, "/cases/case-1/audio", "interview.mp3", audio), 201, &up)
	if up["url"] != "/cases/case-1/audio/interview.mp3" {
		t.Fatalf("upload = %v", up)
	}
	ts.do(t, multipartRequest(t, "/cases/case-1/audio", "notes.txt", []byte("x")), 400, nil)
	ts.do(t, multipartRequest(t, "/cases/ghost/audio", "a.mp3", audio), 404, nil)

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/cases/case-1/audio/interview.mp3", nil), -1)
	if err != nil {
		t.Fatalf("get audio: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !bytes.Equal(body, audio) {
		t.Fatalf("audio status %d body %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content type = %q", ct)
	}

	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/case-1/audio/missing.mp3", nil), 404, nil)
}

func TestChat(t *testing.T) {
	ts := setupServer(t)
	ts.do(t, jsonRequest(http.MethodPost, "/cases", `{"id":"pending"}`), 201, nil)
	ts.do(t, jsonRequest(http.MethodPost, "/cases/pending/chat", `{"messages":[{"role":"user","content":"color?"}]}`), 409, nil)

	ts.importCase(t, "case-1")

	var reply chat.Reply
	ts.do(t, jsonRequest(http.MethodPost, "/cases/case-1/chat", `{"messages":[{"role":"user","content":"What color was the car?"}]}`), 200, &reply)
	if len(reply.Citations) != 1 || reply.Citations[0].URL != "interview.mp3__min00_05.txt" || reply.Citations[0].Title != "interview.mp3 - 00:05" {
		t.Fatalf("reply = %+v", reply)
	}

	ts.do(t, jsonRequest(http.MethodPost, "/cases/case-1/chat", `{"messages":[]}`), 400, nil)
	ts.do(t, jsonRequest(http.MethodPost, "/cases/ghost/chat", `{"messages":[{"role":"user","content":"hi"}]}`), 404, nil)
}

func TestGDriveValidation(t *testing.T) {
	ts := setupServer(t)
	ts.do(t, jsonRequest(http.MethodPost, "/cases/case-1/import/gdrive", `{}`), 400, nil)
	ts.do(t, jsonRequest(http.MethodPost, "/cases/case-1/import/gdrive", `{"url":"https://example.com/x"}`), 400, nil)
}

func TestExtractGDriveFileID(t *testing.T) {
	id := "1AbCdEfGhIjKlMnOpQrStUvWxYz"
	tests := []struct {
		url  string
		want string
	}{
		{"https://drive.google.com/file/d/" + id + "/view?usp=sharing", id},
		{"https://drive.google.com/open?id=" + id, id},
		{id, id},
		{"https://example.com/file", ""},
	}
	for _, tt := range tests {
		if got := extractGDriveFileID(tt.url); got != tt.want {
			t.Errorf("extractGDriveFileID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestReviewRequiresUpgrade(t *testing.T) {
	ts := setupServer(t)
	ts.do(t, jsonRequest(http.MethodPost, "/cases", `{"id":"case-1"}`), 201, nil)
	ts.do(t, httptest.NewRequest(http.MethodGet, "/cases/case-1/review", nil), 426, nil)

	req := httptest.NewRequest(http.MethodGet, "/cases/ghost/review", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	ts.do(t, req, 404, nil)
}
