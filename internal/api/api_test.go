package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haventree/shepherd/internal/assignment"
	"github.com/haventree/shepherd/internal/conversation"
	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/pipeline"
	"github.com/haventree/shepherd/internal/policy"
	"github.com/haventree/shepherd/internal/registry"
	"github.com/haventree/shepherd/internal/store"
)

type testServer struct {
	srv     *Server
	handler http.Handler
	st      *store.InMemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewInMemoryStore()
	pol := policy.New()
	reg := registry.New(st, pol)
	notifier := &nopNotifier{}
	engine := assignment.New(st, reg, pol, notifier)
	convs := conversation.NewManager(st, engine, reg, nil, notifier)
	pipe := pipeline.New(st, reg)
	srv := NewServer(st, pol, reg, engine, convs, pipe)
	return &testServer{srv: srv, handler: srv.Handler(), st: st}
}

type nopNotifier struct{}

func (n *nopNotifier) Notify(ctx context.Context, event models.Notification) error {
	return nil
}

func (n *nopNotifier) Stop() error { return nil }

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (models.APIResponse, json.RawMessage) {
	t.Helper()
	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v (%s)", err, w.Body.String())
	}
	return models.APIResponse{Status: env.Status, Message: env.Message}, env.Result
}

func (ts *testServer) saveLeader(t *testing.T, l models.LeaderProfile) {
	t.Helper()
	if err := ts.st.SaveLeader(l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateRequestIntake(t *testing.T) {
	ts := newTestServer(t)
	ts.saveLeader(t, models.LeaderProfile{
		ID:             "leader_1",
		Name:           "Dana",
		ExpertiseAreas: []models.HelpCategory{models.CategoryGrief},
		IsActive:       true,
		IsAvailable:    true,
	})

	w := ts.do(t, http.MethodPost, "/requests", createRequestRequest{
		Category:    models.CategoryGrief,
		Description: "I lost my father last month.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	env, raw := decodeEnvelope(t, w)
	if env.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok envelope, got %+v", env)
	}
	var result createRequestResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Assignment.Assigned || result.Assignment.LeaderID != "leader_1" {
		t.Errorf("expected assignment to leader_1, got %+v", result.Assignment)
	}
	if result.Conversation == nil || result.Conversation.Status != models.ConversationActive {
		t.Errorf("expected an active conversation, got %+v", result.Conversation)
	}
	if result.Request.Status != models.RequestStatusAssigned {
		t.Errorf("expected assigned request, got %s", result.Request.Status)
	}
}

func TestCreateRequestNoLeaderStaysPending(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/requests", createRequestRequest{Category: models.CategoryMarriage})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	_, raw := decodeEnvelope(t, w)
	var result createRequestResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Assignment.Assigned {
		t.Errorf("no leaders, assignment should report unassignable: %+v", result.Assignment)
	}
	if result.Conversation == nil || result.Conversation.Status != models.ConversationWaiting {
		t.Errorf("expected a waiting conversation, got %+v", result.Conversation)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/requests", createRequestRequest{Category: "knitting"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown category should be 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString("{not json"))
	w2 := httptest.NewRecorder()
	ts.handler.ServeHTTP(w2, req)
	if w2.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON should be 400, got %d", w2.Code)
	}
}

func TestGetRequest(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(t, http.MethodGet, "/requests/req_missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing request should be 404, got %d", w.Code)
	}

	ts.st.SaveRequest(models.HelpRequest{ID: "req_1", Category: models.CategoryGeneral, Status: models.RequestStatusPending})
	if w := ts.do(t, http.MethodGet, "/requests/req_1", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestConversationEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/requests", createRequestRequest{Category: models.CategoryFaithQuestions, Description: "Why does God allow suffering?"})
	_, raw := decodeEnvelope(t, w)
	var result createRequestResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	convID := result.Conversation.ID

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/conversations/%s/messages", convID), postMessageRequest{
		Sender:     models.SenderUser,
		SenderName: "Member",
		Content:    "I have been wrestling with this for years.",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("message should be accepted, got %d: %s", w.Code, w.Body.String())
	}

	// Invalid sender is a client error.
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/conversations/%s/messages", convID), postMessageRequest{Sender: "bot", Content: "hi"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid sender should be 400, got %d", w.Code)
	}

	// Waiting conversations cannot resolve.
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/conversations/%s/resolve", convID), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("resolving a waiting conversation should be 409, got %d", w.Code)
	}

	// Withdraw, then the thread is closed to writes.
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/conversations/%s/withdraw", convID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("withdraw should succeed, got %d: %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/conversations/%s/messages", convID), postMessageRequest{
		Sender: models.SenderUser, SenderName: "Member", Content: "one more thing",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("messaging a closed conversation should be 409, got %d", w.Code)
	}

	// Archive the resolved conversation.
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/conversations/%s/archive", convID), nil)
	if w.Code != http.StatusOK {
		t.Errorf("archive should succeed, got %d", w.Code)
	}

	if w := ts.do(t, http.MethodGet, "/conversations/conv_missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing conversation should be 404, got %d", w.Code)
	}
}

func TestLeaderEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.saveLeader(t, models.LeaderProfile{ID: "leader_1", Name: "Dana", IsActive: true, IsAvailable: true})
	ts.saveLeader(t, models.LeaderProfile{ID: "leader_2", Name: "Riley", IsActive: false})

	w := ts.do(t, http.MethodGet, "/leaders", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	_, raw := decodeEnvelope(t, w)
	var leaders []models.LeaderProfile
	if err := json.Unmarshal(raw, &leaders); err != nil {
		t.Fatalf("failed to decode leaders: %v", err)
	}
	if len(leaders) != 1 || leaders[0].ID != "leader_1" {
		t.Errorf("only active leaders should be listed, got %+v", leaders)
	}

	w = ts.do(t, http.MethodPost, "/leaders/leader_1/availability", setAvailabilityRequest{Available: false})
	if w.Code != http.StatusOK {
		t.Errorf("availability toggle should succeed, got %d", w.Code)
	}
	l, _ := ts.st.GetLeader("leader_1")
	if l.IsAvailable {
		t.Error("leader should be unavailable after toggle")
	}

	w = ts.do(t, http.MethodPost, "/leaders/leader_missing/availability", setAvailabilityRequest{Available: true})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown leader should be 404, got %d", w.Code)
	}
}

func TestLeaderStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.saveLeader(t, models.LeaderProfile{ID: "leader_1", Name: "Dana", IsActive: true})

	w := ts.do(t, http.MethodGet, "/leaders/leader_1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for an empty history, got %d: %s", w.Code, w.Body.String())
	}
	_, raw := decodeEnvelope(t, w)
	var stats models.LeaderStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.TotalSessions != 0 || stats.AverageRating != nil {
		t.Errorf("empty history should be zeroed with nil rating, got %+v", stats)
	}

	if w := ts.do(t, http.MethodGet, "/leaders/leader_missing/stats", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown leader should be 404, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/leaders/leader_1/stats?from=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad window timestamp should be 400, got %d", w.Code)
	}
}

func TestApplicationEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/applications", submitApplicationRequest{
		Name:           "Dana",
		ExpertiseAreas: []models.HelpCategory{models.CategoryGrief},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	_, raw := decodeEnvelope(t, w)
	var app models.LeaderApplication
	if err := json.Unmarshal(raw, &app); err != nil {
		t.Fatalf("failed to decode application: %v", err)
	}

	// Missing expertise is a client error.
	if w := ts.do(t, http.MethodPost, "/applications", submitApplicationRequest{Name: "Riley"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid submission should be 400, got %d", w.Code)
	}

	// Unknown target status is a client error; off-edge transitions conflict.
	path := "/applications/" + app.ID
	if w := ts.do(t, http.MethodPost, path+"/advance", advanceApplicationRequest{Target: "sainthood"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown target should be 400, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, path+"/advance", advanceApplicationRequest{Target: models.ApplicationActive}); w.Code != http.StatusConflict {
		t.Errorf("off-edge transition should be 409, got %d", w.Code)
	}

	if w := ts.do(t, http.MethodPost, path+"/advance", advanceApplicationRequest{Target: models.ApplicationUnderReview}); w.Code != http.StatusOK {
		t.Fatalf("advance to under_review should succeed, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, path+"/advance", advanceApplicationRequest{Target: models.ApplicationTraining}); w.Code != http.StatusOK {
		t.Fatalf("advance to training should succeed, got %d", w.Code)
	}

	// Approval is gated on training completion.
	if w := ts.do(t, http.MethodPost, path+"/advance", advanceApplicationRequest{Target: models.ApplicationApproved}); w.Code != http.StatusConflict {
		t.Errorf("training gate should be 409, got %d", w.Code)
	}

	if w := ts.do(t, http.MethodPost, path+"/training", trainingModuleRequest{Module: "interpretive-dance", Done: true}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown module should be 400, got %d", w.Code)
	}

	if w := ts.do(t, http.MethodPost, path+"/background-check", backgroundCheckRequest{Status: "vibes"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown background check status should be 400, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, path+"/background-check", backgroundCheckRequest{Status: models.BackgroundCheckPassed}); w.Code != http.StatusOK {
		t.Errorf("recording a background check should succeed, got %d", w.Code)
	}

	if w := ts.do(t, http.MethodGet, path, nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/applications/app_missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing application should be 404, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodDelete, "/leaders", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}
