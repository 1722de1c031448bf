package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cihanisildar/abroado-client/internal/cache"
	"github.com/cihanisildar/abroado-client/internal/content"
	"github.com/cihanisildar/abroado-client/internal/mutate"
	"github.com/cihanisildar/abroado-client/internal/push"
)

type fakeConnection struct {
	state push.State
}

func (f *fakeConnection) State() push.State { return f.state }

type fakeTyping struct {
	rooms map[string][]string
}

func (f *fakeTyping) ActiveRooms() []string {
	rooms := make([]string, 0, len(f.rooms))
	for roomID := range f.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (f *fakeTyping) TypingUsers(roomID string) []string {
	users := f.rooms[roomID]
	if users == nil {
		return []string{}
	}
	return users
}

type mutatorCall struct {
	name     string
	target   mutate.TargetKind
	entityID string
	extra    string
}

type fakeMutator struct {
	calls []mutatorCall
	err   error
}

func (f *fakeMutator) Vote(_ context.Context, kind mutate.TargetKind, entityID string, direction content.VoteDirection) error {
	f.calls = append(f.calls, mutatorCall{name: "vote", target: kind, entityID: entityID, extra: string(direction)})
	return f.err
}

func (f *fakeMutator) ToggleSave(_ context.Context, kind mutate.TargetKind, entityID string) error {
	f.calls = append(f.calls, mutatorCall{name: "save", target: kind, entityID: entityID})
	return f.err
}

func (f *fakeMutator) CreateComment(_ context.Context, postID, parentID, body string) (string, error) {
	f.calls = append(f.calls, mutatorCall{name: "comment", entityID: postID, extra: body})
	if f.err != nil {
		return "", f.err
	}
	return "comment-1", nil
}

func (f *fakeMutator) DeleteComment(_ context.Context, postID, commentID string) error {
	f.calls = append(f.calls, mutatorCall{name: "comment-delete", entityID: postID, extra: commentID})
	return f.err
}

func (f *fakeMutator) SendMessage(_ context.Context, roomID, body string) (*content.ChatMessage, error) {
	f.calls = append(f.calls, mutatorCall{name: "message", entityID: roomID, extra: body})
	if f.err != nil {
		return nil, f.err
	}
	return &content.ChatMessage{ID: "msg-1", RoomID: roomID, Body: body}, nil
}

func newTestHandler(t *testing.T, store *cache.Store, connection ConnectionReporter, typing TypingReporter) http.Handler {
	t.Helper()
	return newTestHandlerWithActions(t, store, connection, typing, &fakeMutator{})
}

func newTestHandlerWithActions(t *testing.T, store *cache.Store, connection ConnectionReporter, typing TypingReporter, actions Mutator) http.Handler {
	t.Helper()
	handler, err := NewHTTPHandler(Dependencies{
		Store:      store,
		Connection: connection,
		Typing:     typing,
		Actions:    actions,
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	return handler
}

func TestNewHTTPHandlerValidatesDependencies(t *testing.T) {
	store := cache.NewStore()
	connection := &fakeConnection{state: push.StateDisconnected}
	typing := &fakeTyping{}
	actions := &fakeMutator{}

	tests := []struct {
		name string
		deps Dependencies
	}{
		{name: "missing-store", deps: Dependencies{Connection: connection, Typing: typing, Actions: actions}},
		{name: "missing-connection", deps: Dependencies{Store: store, Typing: typing, Actions: actions}},
		{name: "missing-typing", deps: Dependencies{Store: store, Connection: connection, Actions: actions}},
		{name: "missing-actions", deps: Dependencies{Store: store, Connection: connection, Typing: typing}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHTTPHandler(tt.deps); err == nil {
				t.Fatal("expected dependency validation error")
			}
		})
	}
}

func TestStatusReportsConnectionAndViewCount(t *testing.T) {
	store := cache.NewStore()
	store.Put(cache.ViewKey{Kind: cache.KindPosts}, []content.Entity{
		&content.Post{ID: "post-1", Title: "first", CreatedAt: time.Unix(1700000000, 0).UTC()},
	})
	store.Put(cache.ViewKey{Kind: cache.KindRooms}, nil)

	handler := newTestHandler(t, store,
		&fakeConnection{state: push.StateConnected},
		&fakeTyping{rooms: map[string][]string{"room-1": {"user-2"}}},
	)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	var payload struct {
		ConnectionState string   `json:"connection_state"`
		ViewCount       int      `json:"view_count"`
		ActiveRooms     []string `json:"active_rooms"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ConnectionState != "connected" {
		t.Fatalf("unexpected connection state: %q", payload.ConnectionState)
	}
	if payload.ViewCount != 2 {
		t.Fatalf("unexpected view count: %d", payload.ViewCount)
	}
	if len(payload.ActiveRooms) != 1 || payload.ActiveRooms[0] != "room-1" {
		t.Fatalf("unexpected active rooms: %v", payload.ActiveRooms)
	}
}

func TestViewsListsHeldViewsSorted(t *testing.T) {
	store := cache.NewStore()
	store.Put(cache.ViewKey{Kind: cache.KindRoomMessages, Selector: "room-2"}, []content.Entity{
		&content.ChatMessage{ID: "msg-1", RoomID: "room-2"},
		&content.ChatMessage{ID: "msg-2", RoomID: "room-2"},
	})
	store.Put(cache.ViewKey{Kind: cache.KindPosts}, []content.Entity{
		&content.Post{ID: "post-1"},
	})

	handler := newTestHandler(t, store,
		&fakeConnection{state: push.StateDisconnected}, &fakeTyping{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/views", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	var payload struct {
		Views []struct {
			Kind     string `json:"kind"`
			Selector string `json:"selector"`
			Entities int    `json:"entities"`
		} `json:"views"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(payload.Views))
	}
	if payload.Views[0].Kind != "posts" || payload.Views[0].Entities != 1 {
		t.Fatalf("unexpected first view: %+v", payload.Views[0])
	}
	if payload.Views[1].Kind != "room-messages" || payload.Views[1].Selector != "room-2" || payload.Views[1].Entities != 2 {
		t.Fatalf("unexpected second view: %+v", payload.Views[1])
	}
}

func TestRoomTypingReturnsUsers(t *testing.T) {
	handler := newTestHandler(t, cache.NewStore(),
		&fakeConnection{state: push.StateConnected},
		&fakeTyping{rooms: map[string][]string{"room-1": {"user-2", "user-3"}}},
	)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/rooms/room-1/typing", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	var payload struct {
		RoomID string   `json:"room_id"`
		Typing []string `json:"typing"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.RoomID != "room-1" {
		t.Fatalf("unexpected room id: %q", payload.RoomID)
	}
	if len(payload.Typing) != 2 {
		t.Fatalf("unexpected typing users: %v", payload.Typing)
	}
}

func TestVoteActionDrivesCoordinator(t *testing.T) {
	actions := &fakeMutator{}
	handler := newTestHandlerWithActions(t, cache.NewStore(),
		&fakeConnection{state: push.StateConnected}, &fakeTyping{}, actions)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/actions/vote",
		strings.NewReader(`{"target":"post","entity_id":"post-1","direction":"up"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if len(actions.calls) != 1 {
		t.Fatalf("expected one coordinator call, got %d", len(actions.calls))
	}
	call := actions.calls[0]
	if call.name != "vote" || call.target != mutate.TargetPost || call.entityID != "post-1" || call.extra != string(content.VoteUp) {
		t.Fatalf("unexpected coordinator call: %+v", call)
	}
}

func TestVoteActionSurfacesCoordinatorFailure(t *testing.T) {
	actions := &fakeMutator{err: errors.New("rollback happened")}
	handler := newTestHandlerWithActions(t, cache.NewStore(),
		&fakeConnection{state: push.StateConnected}, &fakeTyping{}, actions)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/actions/vote",
		strings.NewReader(`{"target":"post","entity_id":"post-1","direction":"up"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", recorder.Code)
	}
}

func TestVoteActionRejectsEmptyEntity(t *testing.T) {
	actions := &fakeMutator{}
	handler := newTestHandlerWithActions(t, cache.NewStore(),
		&fakeConnection{state: push.StateConnected}, &fakeTyping{}, actions)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/actions/vote",
		strings.NewReader(`{"target":"post","direction":"up"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if len(actions.calls) != 0 {
		t.Fatalf("coordinator must not be called on invalid input")
	}
}

func TestCommentActionReturnsConfirmedID(t *testing.T) {
	actions := &fakeMutator{}
	handler := newTestHandlerWithActions(t, cache.NewStore(),
		&fakeConnection{state: push.StateConnected}, &fakeTyping{}, actions)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/actions/comments",
		strings.NewReader(`{"post_id":"post-1","body":"hello"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != "comment-1" {
		t.Fatalf("unexpected comment id: %q", payload.ID)
	}
}

func TestMessageActionUsesRoomFromPath(t *testing.T) {
	actions := &fakeMutator{}
	handler := newTestHandlerWithActions(t, cache.NewStore(),
		&fakeConnection{state: push.StateConnected}, &fakeTyping{}, actions)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/rooms/room-7/messages",
		strings.NewReader(`{"body":"hi there"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if len(actions.calls) != 1 || actions.calls[0].name != "message" || actions.calls[0].entityID != "room-7" {
		t.Fatalf("unexpected coordinator calls: %+v", actions.calls)
	}
	var payload struct {
		ID     string `json:"id"`
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != "msg-1" || payload.RoomID != "room-7" {
		t.Fatalf("unexpected message payload: %+v", payload)
	}
}
