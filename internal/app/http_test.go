package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tripboard/api/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service, *memStore) {
	t.Helper()
	mem := newMemStore()
	svc := New(testConfig(), mem, Deps{})
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, svc, mem
}

func doJSON(t *testing.T, method, url string, headers map[string]string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func travelerHeaders() map[string]string {
	return map[string]string{travelerHeader: "tv-1"}
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	wrapper, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error envelope in %v", body)
	}
	code, _ := wrapper["code"].(string)
	return code
}

func createTripHTTP(t *testing.T, server *httptest.Server) map[string]any {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/itineraries", travelerHeaders(), map[string]any{
		"name":        "Lisbon long weekend",
		"destination": "Lisbon",
		"startDate":   "2026-06-01",
		"endDate":     "2026-06-03",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create itinerary returned %d: %v", resp.StatusCode, body)
	}
	return body["itinerary"].(map[string]any)
}

func dayIDs(itinerary map[string]any) []string {
	days := itinerary["days"].([]any)
	ids := make([]string, 0, len(days))
	for _, day := range days {
		ids = append(ids, day.(map[string]any)["id"].(string))
	}
	return ids
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/health", nil, nil)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Errorf("health returned %d %v", resp.StatusCode, body)
	}
}

func TestItinerariesRequireIdentity(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/itineraries", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	if errorCode(t, body) != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED code, got %v", body)
	}
}

func TestReorderDaysEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	itinerary := createTripHTTP(t, server)
	ids := dayIDs(itinerary)
	itineraryID := itinerary["id"].(string)

	reversed := []string{ids[2], ids[1], ids[0]}
	resp, body := doJSON(t, http.MethodPatch,
		fmt.Sprintf("%s/api/itineraries/%s/days/reorder", server.URL, itineraryID),
		travelerHeaders(), map[string]any{"orderedIds": reversed})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reorder returned %d: %v", resp.StatusCode, body)
	}

	updated := body["itinerary"].(map[string]any)
	days := updated["days"].([]any)
	for index, raw := range days {
		day := raw.(map[string]any)
		if day["id"] != reversed[index] {
			t.Errorf("position %d holds %v, want %s", index, day["id"], reversed[index])
		}
		if int(day["position"].(float64)) != index {
			t.Errorf("day %v has position %v", day["id"], day["position"])
		}
	}
	// Dates follow positions after the reorder.
	if days[0].(map[string]any)["date"] != "2026-06-01" {
		t.Errorf("first day date %v, want 2026-06-01", days[0].(map[string]any)["date"])
	}
}

func TestReorderDaysPartialListRejected(t *testing.T) {
	server, _, _ := newTestServer(t)
	itinerary := createTripHTTP(t, server)
	ids := dayIDs(itinerary)

	resp, body := doJSON(t, http.MethodPatch,
		fmt.Sprintf("%s/api/itineraries/%s/days/reorder", server.URL, itinerary["id"]),
		travelerHeaders(), map[string]any{"orderedIds": []string{ids[0]}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if errorCode(t, body) != "INVALID_MOVE_REQUEST" {
		t.Errorf("expected INVALID_MOVE_REQUEST, got %v", body)
	}
}

func TestMoveActivityEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	itinerary := createTripHTTP(t, server)
	ids := dayIDs(itinerary)
	itineraryID := itinerary["id"].(string)

	resp, body := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/itineraries/%s/days/%s/activities", server.URL, itineraryID, ids[0]),
		travelerHeaders(), map[string]any{"title": "Castle", "startTime": "10:00", "duration": 90})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create activity returned %d: %v", resp.StatusCode, body)
	}
	activityID := body["activity"].(map[string]any)["id"].(string)

	resp, body = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/activities/%s/move", server.URL, activityID),
		travelerHeaders(), map[string]any{"targetDayId": ids[1], "position": 0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("move returned %d: %v", resp.StatusCode, body)
	}
	activities := body["activities"].([]any)
	if len(activities) != 1 || activities[0].(map[string]any)["id"] != activityID {
		t.Errorf("moved activity missing from target day: %v", activities)
	}
}

func TestMoveActivityTxConflictMapsTo409(t *testing.T) {
	server, _, mem := newTestServer(t)
	itinerary := createTripHTTP(t, server)
	ids := dayIDs(itinerary)

	resp, body := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/itineraries/%s/days/%s/activities", server.URL, itinerary["id"], ids[0]),
		travelerHeaders(), map[string]any{"title": "Castle"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create activity returned %d: %v", resp.StatusCode, body)
	}
	activityID := body["activity"].(map[string]any)["id"].(string)

	mem.moveErr = store.ErrTxConflict
	resp, body = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/activities/%s/move", server.URL, activityID),
		travelerHeaders(), map[string]any{"targetDayId": ids[1]})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
	if errorCode(t, body) != "TX_CONFLICT" {
		t.Errorf("expected TX_CONFLICT, got %v", body)
	}
}

func TestConflictCheckEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	itinerary := createTripHTTP(t, server)
	ids := dayIDs(itinerary)
	itineraryID := itinerary["id"].(string)

	resp, body := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/itineraries/%s/days/%s/activities", server.URL, itineraryID, ids[0]),
		travelerHeaders(), map[string]any{"title": "Castle", "startTime": "10:00", "duration": 60})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create activity returned %d: %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/itineraries/%s/conflict-check", server.URL, itineraryID),
		travelerHeaders(), map[string]any{"dayId": ids[0], "startTime": "10:30", "duration": 30})
	if resp.StatusCode != http.StatusOK || body["conflict"] != true {
		t.Errorf("expected conflict=true, got %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/itineraries/%s/conflict-check", server.URL, itineraryID),
		travelerHeaders(), map[string]any{"dayId": ids[0], "startTime": "11:00", "duration": 30})
	if resp.StatusCode != http.StatusOK || body["conflict"] != false {
		t.Errorf("expected conflict=false for adjacent slot, got %d %v", resp.StatusCode, body)
	}
}

func TestStrangerGetsForbidden(t *testing.T) {
	server, _, _ := newTestServer(t)
	itinerary := createTripHTTP(t, server)

	resp, body := doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/itineraries/%s", server.URL, itinerary["id"]),
		map[string]string{travelerHeader: "tv-other"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
	if errorCode(t, body) != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN, got %v", body)
	}
}

func TestCommentsRoundTrip(t *testing.T) {
	server, _, _ := newTestServer(t)
	itinerary := createTripHTTP(t, server)
	itineraryID := itinerary["id"].(string)

	resp, body := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/itineraries/%s/comments", server.URL, itineraryID),
		travelerHeaders(), map[string]any{"text": "Can we start later on day 2?"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add comment returned %d: %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/itineraries/%s/comments", server.URL, itineraryID),
		travelerHeaders(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list comments returned %d: %v", resp.StatusCode, body)
	}
	comments := body["comments"].([]any)
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}
	comment := comments[0].(map[string]any)
	if comment["text"] != "Can we start later on day 2?" || comment["authorName"] != "Traveler" {
		t.Errorf("unexpected comment: %v", comment)
	}
}

func TestSignUpSignInFlow(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", nil, map[string]any{
		"email":       "avery@example.com",
		"password":    "correct-horse-battery",
		"displayName": "Avery",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup returned %d: %v", resp.StatusCode, body)
	}
	verification, _ := body["devVerificationToken"].(string)
	if verification == "" {
		t.Fatal("expected dev verification token when SMTP is not configured")
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/auth/verify-email", nil, map[string]any{"token": verification})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify returned %d: %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/auth/signin", nil, map[string]any{
		"email":    "avery@example.com",
		"password": "correct-horse-battery",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin returned %d: %v", resp.StatusCode, body)
	}
	accessToken, _ := body["accessToken"].(string)
	if accessToken == "" {
		t.Fatal("signin returned no access token")
	}

	// The token authenticates itinerary routes.
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/itineraries",
		map[string]string{"Authorization": "Bearer " + accessToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated list returned %d: %v", resp.StatusCode, body)
	}
}

func TestHistorySnapshotEndpoint(t *testing.T) {
	mem := newMemStore()
	history := newFakeTripLog()
	svc := New(testConfig(), mem, Deps{TripLog: history})
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)

	itinerary := createTripHTTP(t, server)
	itineraryID := itinerary["id"].(string)
	full, err := svc.store.GetItinerary(context.Background(), itineraryID)
	if err != nil {
		t.Fatalf("GetItinerary failed: %v", err)
	}
	entry, err := history.Record(itineraryID, buildSnapshot(full), "Traveler", "Planned the weekend")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	resp, body := doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/itineraries/%s/history/%s", server.URL, itineraryID, entry.Hash),
		travelerHeaders(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history snapshot returned %d: %v", resp.StatusCode, body)
	}
	snapshot := body["snapshot"].(map[string]any)
	if snapshot["name"] != "Lisbon long weekend" || snapshot["startDate"] != "2026-06-01" {
		t.Errorf("unexpected snapshot: %v", snapshot)
	}

	resp, body = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/itineraries/%s/history/%s", server.URL, itineraryID, "deadbeef"),
		travelerHeaders(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown hash, got %d", resp.StatusCode)
	}
	if errorCode(t, body) != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", body)
	}
}

func TestCitiesEndpointWithoutBackend(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/cities?q=lis", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cities returned %d", resp.StatusCode)
	}
	if _, ok := body["results"].([]any); !ok {
		t.Errorf("expected empty results array, got %v", body)
	}
}
