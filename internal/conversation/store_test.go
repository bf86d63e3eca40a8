package conversation

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/neilotoole/slogt"
	"github.com/rx3lixir/bijoy/internal/reaction"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	n := 0
	return NewStore(StoreConfig{
		Now: clock.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("m%03d", n)
		},
		Log: slogt.New(t),
	})
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestAppendMessageKeepsCallOrder(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	want := []string{"a", "b", "c", "d"}
	for _, txt := range want {
		if _, ok := s.AppendMessage("c1", Payload{Text: txt}); !ok {
			t.Fatalf("append %q dropped", txt)
		}
	}

	got := s.Messages("c1")
	if diff := cmp.Diff(want, texts(got)); diff != "" {
		t.Errorf("log order mismatch (-want +got):\n%s", diff)
	}
	for _, m := range got {
		if m.SenderID != DefaultSelfID || !m.IsMe(s.SelfID()) {
			t.Errorf("message %s sender = %q", m.ID, m.SenderID)
		}
	}
}

func TestAppendMessageDefaultIDsSortByCreation(t *testing.T) {
	s := NewStore(StoreConfig{Log: slogt.New(t)})

	var prev string
	for i := 0; i < 50; i++ {
		m, _ := s.AppendMessage("c1", Payload{Text: "x"})
		if prev != "" && m.ID <= prev {
			t.Fatalf("id %s does not sort after %s", m.ID, prev)
		}
		prev = m.ID
	}
}

func TestBlockScenario(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	if got := s.GetOrCreateSettings("c1"); got != DefaultSettings() {
		t.Fatalf("fresh settings = %+v", got)
	}
	if len(s.Messages("c1")) != 0 {
		t.Fatal("fresh conversation not empty")
	}

	s.AppendMessage("c1", Payload{Text: "hi"})

	if _, err := s.UpdateSettings("c1", SettingsPatch{IsBlocked: ptr(true)}); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.AppendMessage("c1", Payload{Text: "ignored"}); ok {
		t.Error("append on blocked conversation reported success")
	}
	if n := len(s.Messages("c1")); n != 1 {
		t.Fatalf("log length after blocked append = %d, want 1", n)
	}

	if _, err := s.UpdateSettings("c1", SettingsPatch{IsBlocked: ptr(false)}); err != nil {
		t.Fatal(err)
	}
	s.AppendMessage("c1", Payload{Text: "back"})

	if diff := cmp.Diff([]string{"hi", "back"}, texts(s.Messages("c1"))); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestSetReactionToggles(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	m, _ := s.AppendMessage("c1", Payload{Text: "hi"})

	steps := []struct {
		kind reaction.Kind
		want reaction.Kind
	}{
		{kind: reaction.Love, want: reaction.Love},
		{kind: reaction.Love, want: reaction.None},
		{kind: reaction.Love, want: reaction.Love},
		{kind: reaction.Haha, want: reaction.Haha},
		{kind: reaction.None, want: reaction.None},
	}

	for i, st := range steps {
		got, ok := s.SetReaction("c1", m.ID, st.kind)
		if !ok {
			t.Fatalf("step %d: SetReaction reported not found", i)
		}
		if got.Reaction != st.want {
			t.Errorf("step %d: reaction = %q, want %q", i, got.Reaction, st.want)
		}
	}
}

func TestSetReactionNoOps(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	m, _ := s.AppendMessage("c1", Payload{Text: "hi"})

	if _, ok := s.SetReaction("c1", "missing", reaction.Like); ok {
		t.Error("reaction on missing message succeeded")
	}
	if _, ok := s.SetReaction("c2", m.ID, reaction.Like); ok {
		t.Error("reaction through wrong conversation succeeded")
	}
	if _, ok := s.SetReaction("c1", m.ID, reaction.Kind("meh")); ok {
		t.Error("unknown reaction kind accepted")
	}
	if got, _ := s.Message(m.ID); got.Reaction != reaction.None {
		t.Errorf("reaction changed to %q", got.Reaction)
	}
}

func TestUnsendKeepsTombstone(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	s.AppendMessage("c1", Payload{Text: "one"})
	clock.Advance(time.Minute)
	target, _ := s.AppendMessage("c1", Payload{Image: "data:image/png;base64,AAAA", Text: "caption"})
	clock.Advance(time.Minute)
	s.AppendMessage("c1", Payload{Text: "three"})

	if _, ok := s.Unsend(target.ID); !ok {
		t.Fatal("Unsend() reported not found")
	}

	msgs := s.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	got := msgs[1]
	if got.ID != target.ID || !got.Timestamp.Equal(target.Timestamp) || !got.IsUnsent {
		t.Errorf("tombstone = %+v", got)
	}

	visible := got.Visible()
	if visible.Text != "" || visible.Image != "" {
		t.Errorf("Visible() leaked payload: %+v", visible)
	}
	if _, ok := s.Unsend("missing"); ok {
		t.Error("Unsend(missing) succeeded")
	}
}

func TestDeleteForMeRemovesRecord(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	a, _ := s.AppendMessage("c1", Payload{Text: "a"})
	b, _ := s.AppendMessage("c1", Payload{Text: "b"})
	s.AppendMessage("c1", Payload{Text: "c"})

	if !s.DeleteForMe(b.ID) {
		t.Fatal("DeleteForMe() reported not found")
	}
	if diff := cmp.Diff([]string{"a", "c"}, texts(s.Messages("c1"))); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Message(b.ID); ok {
		t.Error("deleted message still resolvable")
	}
	if s.DeleteForMe(b.ID) {
		t.Error("second DeleteForMe() succeeded")
	}
	if _, ok := s.SetReaction("c1", a.ID, reaction.Like); !ok {
		t.Error("index broken for surviving message")
	}
}

func TestNoteTimeLock(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	first, err := s.UpdateSettings("c1", SettingsPatch{Note: ptr("x")})
	if err != nil {
		t.Fatal(err)
	}
	t0 := first.NoteCreatedAt

	clock.Advance(23*time.Hour + 59*time.Minute)
	got, err := s.UpdateSettings("c1", SettingsPatch{Note: ptr("y")})
	if !errors.Is(err, ErrNoteLocked) {
		t.Fatalf("err = %v, want ErrNoteLocked", err)
	}
	if got.Note != "x" || !got.NoteCreatedAt.Equal(t0) {
		t.Errorf("locked note changed: %+v", got)
	}

	clock.Advance(2 * time.Minute)
	got, err = s.UpdateSettings("c1", SettingsPatch{Note: ptr("y")})
	if err != nil {
		t.Fatalf("err = %v after window", err)
	}
	if got.Note != "y" || !got.NoteCreatedAt.Equal(clock.Now()) {
		t.Errorf("new note = %+v", got)
	}
}

func TestNoteLazyExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	_, _ = s.UpdateSettings("c1", SettingsPatch{Note: ptr("brb")})
	clock.Advance(NoteLock)

	got := s.GetOrCreateSettings("c1")
	if got.Note != "" || !got.NoteCreatedAt.IsZero() {
		t.Errorf("expired note still present: %+v", got)
	}
}

func TestNoteValidation(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	if _, err := s.UpdateSettings("c1", SettingsPatch{Note: ptr("   ")}); !errors.Is(err, ErrEmptyNote) {
		t.Errorf("blank note err = %v", err)
	}

	long := ""
	for i := 0; i < 150; i++ {
		long += "ক"
	}
	got, err := s.UpdateSettings("c1", SettingsPatch{Note: ptr(long)})
	if err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(got.Note)); n != MaxNoteLength {
		t.Errorf("note length = %d runes, want %d", n, MaxNoteLength)
	}
}

func TestUpdateSettingsMergesAndRejectsAtomically(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	got, err := s.UpdateSettings("c1", SettingsPatch{
		ThemeColor:     ptr(ThemeMidnight),
		FriendNickname: ptr("Rafi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ = s.UpdateSettings("c1", SettingsPatch{MyNickname: ptr("Boss")})

	want := Settings{ThemeColor: ThemeMidnight, FriendNickname: "Rafi", MyNickname: "Boss"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	_, err = s.UpdateSettings("c1", SettingsPatch{ThemeColor: ptr(Theme("neon")), MyNickname: ptr("x")})
	if !errors.Is(err, ErrUnknownTheme) {
		t.Fatalf("err = %v, want ErrUnknownTheme", err)
	}
	if s.GetOrCreateSettings("c1").MyNickname != "Boss" {
		t.Error("rejected patch partially applied")
	}
	if got.DisplayName("Rafiul") != "Rafi" || got.MyDisplayName("Me") != "Boss" {
		t.Error("display names ignore nicknames")
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	var got []EventType
	unsubscribe := s.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	m, _ := s.AppendMessage("c1", Payload{Text: "hi"})
	s.SetReaction("c1", m.ID, reaction.Like)
	s.Unsend(m.ID)
	s.Unsend(m.ID)
	s.DeleteForMe(m.ID)
	_, _ = s.UpdateSettings("c1", SettingsPatch{MyNickname: ptr("me")})

	unsubscribe()
	s.AppendMessage("c1", Payload{Text: "unseen"})

	want := []EventType{
		EventMessageAppended,
		EventMessageUpdated,
		EventMessageUpdated,
		EventMessageDeleted,
		EventSettingsUpdated,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestConversationsOrderedByActivity(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	s.AppendMessage("old", Payload{Text: "1"})
	clock.Advance(time.Hour)
	s.AppendMessage("new", Payload{Text: "2"})
	s.GetOrCreateSettings("empty")

	got := s.Conversations()
	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	if diff := cmp.Diff([]string{"new", "old", "empty"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotLoadRoundTrip(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	m, _ := s.AppendMessage("c1", Payload{Text: "hi"})
	s.SetReaction("c1", m.ID, reaction.Wow)
	_, _ = s.UpdateSettings("c1", SettingsPatch{ThemeColor: ptr(ThemeCyberpunk)})

	snap, ok := s.Snapshot("c1")
	if !ok {
		t.Fatal("Snapshot() missing")
	}

	other := newTestStore(t, newFakeClock())
	other.Load(snap)

	got, _ := other.Snapshot("c1")
	if diff := cmp.Diff(snap, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if _, ok := other.Unsend(m.ID); !ok {
		t.Error("loaded message not indexed")
	}
}
