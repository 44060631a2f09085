package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"problem-recs/api/internal/llm"
	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

type fakeRunner struct {
	res  *recommend.Result
	err  error
	got  recommend.Upload
	dead time.Time
}

func (f *fakeRunner) Run(ctx context.Context, in recommend.Upload) (*recommend.Result, error) {
	f.got = in
	f.dead, _ = ctx.Deadline()
	return f.res, f.err
}

type fakeUploads struct {
	mu   sync.Mutex
	logs []*store.UploadLog
	err  error
}

func (f *fakeUploads) Insert(ctx context.Context, l *store.UploadLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, l)
	return f.err
}

type fakeArchive struct {
	mu   sync.Mutex
	puts int
}

func (f *fakeArchive) Put(ctx context.Context, data []byte, mime string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	return "uploads/x.png", nil
}

func newTestHandle(run *fakeRunner, up *fakeUploads, ar *fakeArchive) http.Handler {
	opts := Options{
		Runners: func(name string) (Runner, error) {
			if name != "" && name != "openai" && name != "gemini" {
				return nil, errors.New("unknown llm " + name)
			}
			return run, nil
		},
		MaxUploadBytes: 1 << 20,
		RequestTimeout: time.Minute,
	}
	if up != nil {
		opts.Uploads = up
	}
	if ar != nil {
		opts.Archive = ar
	}
	return New(opts).Router(nil)
}

type part struct {
	name, filename, ctype string
	data                  []byte
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			if err := mw.WriteField(p.name, string(p.data)); err != nil {
				t.Fatalf("field: %v", err)
			}
			continue
		}
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.filename+`"`)
		hdr.Set("Content-Type", p.ctype)
		w, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("part: %v", err)
		}
		_, _ = w.Write(p.data)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, h http.Handler, body *bytes.Buffer, ctype string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/recommendations/upload", body)
	req.Header.Set("Content-Type", ctype)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return b
}

func okResult() *recommend.Result {
	return &recommend.Result{
		Success:          true,
		Recommendations:  []recommend.Recommendation{{ID: "p1", ProblemText: "d/dx x^2", Difficulty: recommend.Easy, Subproblems: []recommend.Subproblem{}}},
		IdentifiedTopics: []int{4},
		UploadSummary:    "derivatives",
		ExtractedLength:  120,
		Message:          "Found 1 similar problems based on your uploaded content",
	}
}

func TestUploadImageSuccess(t *testing.T) {
	run := &fakeRunner{res: okResult()}
	up := &fakeUploads{}
	ar := &fakeArchive{}
	body, ct := multipartBody(t,
		part{name: "file", filename: "page.png", ctype: "image/png", data: pngHeader},
		part{name: "userId", data: []byte("u-42")},
	)
	rec := post(t, newTestHandle(run, up, ar), body, ct, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rec.Code, rec.Body.String())
	}
	var res map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res["success"] != true || res["message"] == "" {
		t.Fatalf("body: %v", res)
	}
	if _, ok := res["pageCount"]; ok {
		t.Fatalf("pageCount must be omitted for single page")
	}
	if run.got.MIME != "image/png" || len(run.got.Image) != len(pngHeader) {
		t.Fatalf("upload: %+v", run.got)
	}
	if len(up.logs) != 1 || up.logs[0].UserID != "u-42" || up.logs[0].Source != "image" || up.logs[0].ProblemIDs[0] != "p1" {
		t.Fatalf("upload log: %+v", up.logs)
	}
	if ar.puts != 1 {
		t.Fatalf("archive puts: %d", ar.puts)
	}
}

func TestUploadPreExtractedText(t *testing.T) {
	run := &fakeRunner{res: okResult()}
	ar := &fakeArchive{}
	body, ct := multipartBody(t,
		part{name: "isPDF", data: []byte("true")},
		part{name: "extractedText", data: []byte("--- Page 1 ---\nlimits\n--- Page 2 ---\nderivatives")},
	)
	rec := post(t, newTestHandle(run, nil, ar), body, ct, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if !run.got.IsPDF || !strings.Contains(run.got.ExtractedText, "Page 2") {
		t.Fatalf("upload: %+v", run.got)
	}
	if ar.puts != 0 {
		t.Fatalf("text uploads are not archived")
	}
}

func TestUploadMissingFile(t *testing.T) {
	body, ct := multipartBody(t, part{name: "userId", data: []byte("u")})
	rec := post(t, newTestHandle(&fakeRunner{}, nil, nil), body, ct, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", rec.Code)
	}
	if b := decodeErr(t, rec); b.Success || b.Code != "bad_request" || b.Error != "no file uploaded" {
		t.Fatalf("body: %+v", b)
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	body, ct := multipartBody(t, part{name: "file", filename: "notes.docx", ctype: "application/octet-stream", data: []byte("PK\x03\x04 not an image")})
	rec := post(t, newTestHandle(&fakeRunner{}, nil, nil), body, ct, nil)
	if rec.Code != http.StatusBadRequest || decodeErr(t, rec).Code != "unsupported_file" {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestUploadNotMultipart(t *testing.T) {
	rec := post(t, newTestHandle(&fakeRunner{}, nil, nil), bytes.NewBufferString(`{"file":"x"}`), "application/json", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestUploadErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"config", &recommend.ConfigurationError{Err: llm.ErrNotConfigured}, http.StatusServiceUnavailable, "service_unavailable"},
		{"content", &recommend.ContentError{Length: 3, Min: 10}, http.StatusBadRequest, "insufficient_content"},
		{"transcription", &recommend.TranscriptionError{Status: 502, Message: "bad gateway"}, http.StatusInternalServerError, "transcription_failed"},
		{"database", &recommend.DatabaseError{Op: "load subproblems", Err: errors.New("conn reset")}, http.StatusInternalServerError, "recommendation_failed"},
		{"ranking", &recommend.RankingError{PrimaryReason: "x", Err: errors.New("y")}, http.StatusInternalServerError, "recommendation_failed"},
		{"other", errors.New("???"), http.StatusInternalServerError, "recommendation_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &fakeUploads{}
			body, ct := multipartBody(t, part{name: "file", filename: "a.png", ctype: "image/png", data: pngHeader})
			rec := post(t, newTestHandle(&fakeRunner{err: tc.err}, up, nil), body, ct, nil)
			if rec.Code != tc.status {
				t.Fatalf("status: want=%d got=%d", tc.status, rec.Code)
			}
			b := decodeErr(t, rec)
			if b.Code != tc.code || b.Success || b.Error == "" {
				t.Fatalf("body: %+v", b)
			}
			if len(up.logs) != 0 {
				t.Fatalf("failed requests are not logged as uploads")
			}
		})
	}
}

func TestUploadLogFailureIsSilent(t *testing.T) {
	body, ct := multipartBody(t, part{name: "file", filename: "a.png", ctype: "image/png", data: pngHeader})
	rec := post(t, newTestHandle(&fakeRunner{res: okResult()}, &fakeUploads{err: errors.New("db down")}, nil), body, ct, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestUploadUnknownLLM(t *testing.T) {
	body, ct := multipartBody(t,
		part{name: "file", filename: "a.png", ctype: "image/png", data: pngHeader},
		part{name: "llm", data: []byte("deepthought")},
	)
	rec := post(t, newTestHandle(&fakeRunner{res: okResult()}, nil, nil), body, ct, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestUploadRequestTimeoutHeader(t *testing.T) {
	run := &fakeRunner{res: okResult()}
	body, ct := multipartBody(t, part{name: "file", filename: "a.png", ctype: "image/png", data: pngHeader})
	before := time.Now()
	rec := post(t, newTestHandle(run, nil, nil), body, ct, map[string]string{"X-Request-Timeout": "5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if left := run.dead.Sub(before); left > 6*time.Second || left <= 0 {
		t.Fatalf("deadline not shortened: %v", left)
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandle(&fakeRunner{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}
