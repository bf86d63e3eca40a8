package live

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/neilotoole/slogt"
	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/device"
)

func newTestCallRouter(t *testing.T, host *fakeHost, conn *fakeConn) (http.Handler, *conversation.Store) {
	t.Helper()
	store := conversation.NewStore(conversation.StoreConfig{Log: slogt.New(t)})
	calls := NewCalls(Config{
		Dialer: connDialer(conn),
		Log:    slogt.New(t),
	}, func(string) (device.Host, error) { return host, nil })
	t.Cleanup(calls.EndAll)

	r := chi.NewRouter()
	NewHandler(calls, store, slogt.New(t), 0).RegisterRoutes(r)
	return r, store
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHandleCallLifecycle(t *testing.T) {
	host, conn := newFakeHost(), newFakeConn()
	router, store := newTestCallRouter(t, host, conn)

	nick := "Rafi bhai"
	_, _ = store.UpdateSettings("c1", conversation.SettingsPatch{FriendNickname: &nick})

	rec := serve(router, http.MethodPost, "/conversations/c1/call", `{"partner_name":"Rafiul"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start = %d, body = %s", rec.Code, rec.Body)
	}
	var st Status
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.State != StateOpen || st.Partner != nick {
		t.Errorf("status = %+v", st)
	}

	select {
	case m := <-conn.sent:
		if !strings.Contains(m.Setup.SystemInstruction.Parts[0].Text, nick) {
			t.Errorf("prompt does not use nickname: %q", m.Setup.SystemInstruction.Parts[0].Text)
		}
	default:
		t.Fatal("no setup sent")
	}

	rec = serve(router, http.MethodPost, "/conversations/c1/call/mute", "")
	var mute MuteResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &mute)
	if !mute.Muted {
		t.Error("mute not toggled on")
	}

	if rec := serve(router, http.MethodPost, "/conversations/c1/call", `{"partner_name":"Rafiul"}`); rec.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", rec.Code)
	}
	if rec := serve(router, http.MethodDelete, "/conversations/c1/call", ""); rec.Code != http.StatusNoContent {
		t.Errorf("end = %d", rec.Code)
	}
	assertReleased(t, host)
}

func TestHandleCallPermissionDenied(t *testing.T) {
	host := newFakeHost()
	host.deny = true
	router, _ := newTestCallRouter(t, host, newFakeConn())

	rec := serve(router, http.MethodPost, "/conversations/c1/call", `{"partner_name":"Rafiul"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var body struct {
		Details Status `json:"details"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Details.Error == "" {
		t.Errorf("failure status not reported: %s", rec.Body)
	}
}

func TestHandleCallValidation(t *testing.T) {
	router, _ := newTestCallRouter(t, newFakeHost(), newFakeConn())

	if rec := serve(router, http.MethodPost, "/conversations/c1/call", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing partner = %d, want 400", rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/conversations/c1/call", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status without call = %d, want 404", rec.Code)
	}
}
