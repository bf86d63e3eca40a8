package composer

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/neilotoole/slogt"
	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/device"
)

func newTestHandler(t *testing.T) (http.Handler, *conversation.Store, *device.Remote) {
	t.Helper()
	recs, remote, store := newTestRecorders(t)
	r := chi.NewRouter()
	NewHandler(recs.composer, recs, slogt.New(t), 0).RegisterRoutes(r)
	return r, store, remote
}

func TestHandleSendText(t *testing.T) {
	router, store, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", strings.NewReader(`{"text":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var msg conversation.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Text != "hello" {
		t.Errorf("message = %+v", msg)
	}

	blocked := true
	_, _ = store.UpdateSettings("c1", conversation.SettingsPatch{IsBlocked: &blocked})

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", strings.NewReader(`{"text":"x"}`)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("blocked status = %d, want 403", rec.Code)
	}
}

func TestHandleSendAttachment(t *testing.T) {
	router, store, _ := newTestHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("text", "pic")
	fw, _ := mw.CreateFormFile("image", "cat.png")
	_, _ = fw.Write([]byte("png"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	msgs := store.Messages("c1")
	if len(msgs) != 1 || msgs[0].Text != "pic" || !strings.HasPrefix(msgs[0].Image, "data:") {
		t.Errorf("log = %+v", msgs)
	}
}

func TestHandleRecordingLifecycle(t *testing.T) {
	router, store, remote := newTestHandler(t)
	remote.SetPermission(device.PermissionGranted)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	if rec := do(http.MethodPost, "/conversations/c1/recording/start", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d, body = %s", rec.Code, rec.Body)
	}
	if rec := do(http.MethodPost, "/conversations/c1/recording/start", ""); rec.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", rec.Code)
	}

	remote.PushChunk([]byte("voice"))

	if rec := do(http.MethodPost, "/conversations/c1/recording/stop", `{"send":true}`); rec.Code != http.StatusCreated {
		t.Fatalf("stop = %d, body = %s", rec.Code, rec.Body)
	}
	if msgs := store.Messages("c1"); len(msgs) != 1 || msgs[0].Audio == "" {
		t.Errorf("log = %+v", msgs)
	}
	if rec := do(http.MethodPost, "/conversations/c1/recording/stop", ""); rec.Code != http.StatusConflict {
		t.Errorf("stop while idle = %d, want 409", rec.Code)
	}
}

func TestHandleRecordingDenied(t *testing.T) {
	router, _, remote := newTestHandler(t)
	remote.SetPermission(device.PermissionDenied)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/c1/recording/start", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandleRecordingUnknownConversation(t *testing.T) {
	recs, _, _ := newTestRecorders(t)
	router := chi.NewRouter()
	NewHandler(recs.composer, recs, slogt.New(t), 0).RegisterRoutes(router)

	for _, id := range []string{"x1", "x2", "x3"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/"+id+"/recording", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var st RecorderStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			t.Fatal(err)
		}
		if st.State != StateIdle {
			t.Errorf("state = %q, want idle", st.State)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/"+id+"/recording/stop", nil))
		if rec.Code != http.StatusConflict {
			t.Errorf("stop = %d, want 409", rec.Code)
		}
	}
	if n := recs.Len(); n != 0 {
		t.Errorf("recorders = %d, want 0", n)
	}
}
