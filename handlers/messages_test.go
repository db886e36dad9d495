// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/gastroswipe/live"
	"github.com/danielhkuo/gastroswipe/models"
	"github.com/danielhkuo/gastroswipe/testutil"
	"github.com/google/uuid"
)

func postMessage(t *testing.T, handler *MessageHandler, groupID, userID, content string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.MakeRequest("POST", "/api/groups/"+groupID+"/messages", models.PostMessageRequest{Content: content}, nil)
	req.SetPathValue("id", groupID)
	req = testutil.WithUser(req, userID)
	w := httptest.NewRecorder()
	handler.PostMessage(w, req)
	return w
}

func TestPostMessage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewMessageHandler(db, live.NewHub(nil))
	ownerID := testutil.CreateTestUser(t, db, "owner@example.com", "Owner")
	strangerID := testutil.CreateTestUser(t, db, "stranger@example.com", "Stranger")
	groupID := testutil.CreateTestGroup(t, db, ownerID, "Chat")

	tests := []struct {
		name           string
		userID         string
		content        string
		expectedStatus int
		expectedCode   string
	}{
		{"plain text", ownerID, "  pizza tonight?  ", http.StatusCreated, ""},
		{"json that is not a control payload", ownerID, `{"type":"poll","q":"where?"}`, http.StatusCreated, ""},
		{"round start payload", ownerID, `{"type":"round_start","round_id":"abc"}`, http.StatusUnprocessableEntity, models.CodeControlMessage},
		{"swipe results payload", ownerID, `{"type":"swipe_results","accepted":[1,2]}`, http.StatusUnprocessableEntity, models.CodeControlMessage},
		{"blank", ownerID, "   ", http.StatusUnprocessableEntity, models.CodeValidation},
		{"non-member", strangerID, "hello", http.StatusForbidden, models.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postMessage(t, handler, groupID, tt.userID, tt.content)

			if tt.expectedCode != "" {
				testutil.AssertErrorCode(t, w, tt.expectedStatus, tt.expectedCode)
				return
			}
			testutil.AssertStatus(t, w, tt.expectedStatus)

			var msg models.Message
			testutil.AssertData(t, w, &msg)
			if msg.AuthorAlias != "Owner" {
				t.Errorf("Expected author alias Owner, got %q", msg.AuthorAlias)
			}
		})
	}

	var stored int
	db.QueryRow(`SELECT COUNT(*) FROM group_message WHERE group_id = $1`, groupID).Scan(&stored)
	if stored != 2 {
		t.Errorf("Expected 2 stored messages, got %d", stored)
	}

	var events int
	db.QueryRow(`SELECT COUNT(*) FROM group_event WHERE group_id = $1`, groupID).Scan(&events)
	if events != 0 {
		t.Errorf("Chat must not create events, got %d", events)
	}
}

func TestListMessages(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewMessageHandler(db, nil)
	ownerID := testutil.CreateTestUser(t, db, "owner@example.com", "Owner")
	groupID := testutil.CreateTestGroup(t, db, ownerID, "History")

	for i := 0; i < 5; i++ {
		testutil.AssertStatus(t, postMessage(t, handler, groupID, ownerID, fmt.Sprintf("message %d", i)), http.StatusCreated)
	}

	list := func(query string) []models.Message {
		req := httptest.NewRequest("GET", "/api/groups/"+groupID+"/messages"+query, nil)
		req.SetPathValue("id", groupID)
		req = testutil.WithUser(req, ownerID)
		w := httptest.NewRecorder()
		handler.ListMessages(w, req)
		testutil.AssertStatus(t, w, http.StatusOK)

		var resp struct {
			Items []models.Message `json:"items"`
		}
		testutil.AssertJSON(t, w, &resp)
		return resp.Items
	}

	all := list("")
	if len(all) != 5 {
		t.Fatalf("Expected 5 messages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Error("Messages should be in ascending order")
		}
	}

	latest := list("?limit=2")
	if len(latest) != 2 || latest[1].Content != "message 4" {
		t.Errorf("Expected the two newest messages, got %+v", latest)
	}

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/groups/"+groupID+"/messages?limit=500", nil)
		req.SetPathValue("id", groupID)
		req = testutil.WithUser(req, ownerID)
		w := httptest.NewRecorder()
		handler.ListMessages(w, req)
		testutil.AssertErrorCode(t, w, http.StatusUnprocessableEntity, models.CodeValidation)
	})

	t.Run("invalid before", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/groups/"+groupID+"/messages?before=yesterday", nil)
		req.SetPathValue("id", groupID)
		req = testutil.WithUser(req, ownerID)
		w := httptest.NewRecorder()
		handler.ListMessages(w, req)
		testutil.AssertErrorCode(t, w, http.StatusUnprocessableEntity, models.CodeValidation)
	})
}

func TestListMessagesSharedTimestamp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewMessageHandler(db, nil)
	ownerID := testutil.CreateTestUser(t, db, "owner@example.com", "Owner")
	groupID := testutil.CreateTestGroup(t, db, ownerID, "Burst")

	stamp := time.Date(2025, 6, 1, 19, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := db.Exec(`
			INSERT INTO group_message (id, group_id, user_id, author_alias, content, created_at)
			VALUES ($1, $2, $3, 'Owner', $4, $5)
		`, uuid.NewString(), groupID, ownerID, fmt.Sprintf("burst %d", i), stamp)
		if err != nil {
			t.Fatalf("Failed to insert message: %v", err)
		}
	}

	list := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/groups/"+groupID+"/messages"+query, nil)
		req.SetPathValue("id", groupID)
		req = testutil.WithUser(req, ownerID)
		w := httptest.NewRecorder()
		handler.ListMessages(w, req)
		return w
	}
	items := func(w *httptest.ResponseRecorder) []models.Message {
		testutil.AssertStatus(t, w, http.StatusOK)
		var resp struct {
			Items []models.Message `json:"items"`
		}
		testutil.AssertJSON(t, w, &resp)
		return resp.Items
	}

	first := items(list("?limit=2"))
	if len(first) != 2 {
		t.Fatalf("Expected a page of 2, got %d", len(first))
	}

	rest := items(list("?limit=2&before_id=" + first[0].ID))
	if len(rest) != 1 {
		t.Fatalf("Expected the remaining message, got %d", len(rest))
	}

	seen := map[string]bool{first[0].ID: true, first[1].ID: true, rest[0].ID: true}
	if len(seen) != 3 {
		t.Errorf("Expected 3 distinct messages across pages, got %d", len(seen))
	}

	t.Run("unknown cursor", func(t *testing.T) {
		w := list("?before_id=" + uuid.NewString())
		testutil.AssertErrorCode(t, w, http.StatusUnprocessableEntity, models.CodeValidation)
	})

	t.Run("malformed cursor", func(t *testing.T) {
		w := list("?before_id=nope")
		testutil.AssertErrorCode(t, w, http.StatusUnprocessableEntity, models.CodeValidation)
	})
}

func TestListEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewMessageHandler(db, nil)
	ownerID := testutil.CreateTestUser(t, db, "owner@example.com", "Owner")
	groupID := testutil.CreateTestGroup(t, db, ownerID, "Events")

	var firstID int64
	for i := 0; i < 3; i++ {
		ev, err := recordEvent(t.Context(), db, groupID, nil, ownerID, models.EventPlayerJoin, map[string]int{"n": i})
		if err != nil {
			t.Fatalf("Failed to record event: %v", err)
		}
		if i == 0 {
			firstID = ev.ID
		}
	}

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/groups/%s/events?after=%d", groupID, firstID), nil)
	req.SetPathValue("id", groupID)
	req = testutil.WithUser(req, ownerID)
	w := httptest.NewRecorder()
	handler.ListEvents(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp struct {
		Items []models.Event `json:"items"`
	}
	testutil.AssertJSON(t, w, &resp)

	if len(resp.Items) != 2 {
		t.Fatalf("Expected 2 events after the first, got %d", len(resp.Items))
	}
	if resp.Items[0].ID >= resp.Items[1].ID {
		t.Error("Events should be in ascending id order")
	}
	if string(resp.Items[1].Payload) != `{"n": 2}` && string(resp.Items[1].Payload) != `{"n":2}` {
		t.Errorf("Unexpected payload %s", resp.Items[1].Payload)
	}
}

// Two overlapping event writers in the same group: the later writer waits for
// the earlier commit, so following the after cursor one page at a time sees both.
func TestEventCursorOverlappingWriters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewMessageHandler(db, nil)
	ownerID := testutil.CreateTestUser(t, db, "owner@example.com", "Owner")
	memberID := testutil.CreateTestUser(t, db, "member@example.com", "Member")
	groupID := testutil.CreateTestGroup(t, db, ownerID, "Overlap")
	testutil.AddTestMember(t, db, groupID, memberID, models.RoleMember)

	ctx := t.Context()

	txA, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin first transaction: %v", err)
	}
	defer txA.Rollback()
	first, err := recordEvent(ctx, txA, groupID, nil, ownerID, models.EventPlayerJoin, map[string]string{"who": "first"})
	if err != nil {
		t.Fatalf("Failed to record first event: %v", err)
	}

	type outcome struct {
		ev  models.Event
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		txB, err := db.BeginTx(ctx, nil)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer txB.Rollback()
		ev, err := recordEvent(ctx, txB, groupID, nil, memberID, models.EventPlayerJoin, map[string]string{"who": "second"})
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{ev: ev, err: txB.Commit()}
	}()

	select {
	case <-done:
		t.Fatal("Second writer finished while the first transaction was still open")
	case <-time.After(300 * time.Millisecond):
	}

	if err := txA.Commit(); err != nil {
		t.Fatalf("Failed to commit first transaction: %v", err)
	}

	var second models.Event
	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Second writer failed: %v", res.err)
		}
		second = res.ev
	case <-time.After(5 * time.Second):
		t.Fatal("Second writer never finished")
	}

	if second.ID <= first.ID {
		t.Fatalf("Expected the later commit to get the larger id, got %d then %d", first.ID, second.ID)
	}

	page := func(after int64) []models.Event {
		req := httptest.NewRequest("GET", fmt.Sprintf("/api/groups/%s/events?after=%d&limit=1", groupID, after), nil)
		req.SetPathValue("id", groupID)
		req = testutil.WithUser(req, memberID)
		w := httptest.NewRecorder()
		handler.ListEvents(w, req)
		testutil.AssertStatus(t, w, http.StatusOK)

		var resp struct {
			Items []models.Event `json:"items"`
		}
		testutil.AssertJSON(t, w, &resp)
		return resp.Items
	}

	var seen []int64
	cursor := int64(0)
	for {
		items := page(cursor)
		if len(items) == 0 {
			break
		}
		seen = append(seen, items[0].ID)
		cursor = items[0].ID
	}

	if len(seen) != 2 || seen[0] != first.ID || seen[1] != second.ID {
		t.Errorf("Expected cursor to visit [%d %d], got %v", first.ID, second.ID, seen)
	}
}
