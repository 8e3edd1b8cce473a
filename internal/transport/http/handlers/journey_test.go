package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"pms/internal/app/server"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error any             `json:"error"`
}

// TestAppraisalWorkflowJourney walks one appraisal through every stage of the
// review cycle: the manager opens it, the appraiser completes the goal set and
// submits, the appraisee self-assesses, the appraiser and reviewer evaluate,
// and the finished appraisal yields a PDF, audit trail entries and summary
// numbers.
func TestAppraisalWorkflowJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	app, err := server.New(ctx, testConfig(dbURL))
	if err != nil {
		t.Fatalf("start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	adminToken := login(t, ts, "admin@test.local", "ChangeMe123!")
	managerToken := login(t, ts, "manager@demo.local", "demo-password")
	leadToken := login(t, ts, "lead@demo.local", "demo-password")
	employeeToken := login(t, ts, "employee@demo.local", "demo-password")

	employeeID := userIDByEmail(t, app, "employee@demo.local")
	leadID := userIDByEmail(t, app, "lead@demo.local")
	managerID := userIDByEmail(t, app, "manager@demo.local")

	created := postJSON(t, ts, managerToken, "/api/v1/appraisals", map[string]any{
		"startDate":   "2026-01-01",
		"endDate":     "2026-12-31",
		"appraiseeId": employeeID,
		"appraiserId": leadID,
		"reviewerId":  managerID,
		"goals": []map[string]any{
			{"title": "Ship the reporting revamp", "description": "Land the new summary pipeline", "weightage": 60},
		},
	})
	appraisalID, _ := created["id"].(string)
	if appraisalID == "" {
		t.Fatalf("expected appraisal id, got %v", created)
	}
	if created["status"] != "draft" {
		t.Fatalf("expected draft status, got %v", created["status"])
	}

	goalTwo := postJSON(t, ts, leadToken, "/api/v1/appraisals/"+appraisalID+"/goals", map[string]any{
		"title":     "Mentor the new hires",
		"weightage": 40,
	})
	goalTwoID, _ := goalTwo["id"].(string)
	if goalTwoID == "" {
		t.Fatalf("expected goal id, got %v", goalTwo)
	}

	submitted := putJSON(t, ts, leadToken, "/api/v1/appraisals/"+appraisalID, map[string]any{
		"status": "submitted",
	})
	if submitted["status"] != "submitted" {
		t.Fatalf("expected submitted, got %v", submitted["status"])
	}

	acked := putJSON(t, ts, employeeToken, "/api/v1/appraisals/"+appraisalID, map[string]any{
		"status": "self_assessment",
	})
	if acked["status"] != "self_assessment" {
		t.Fatalf("expected self_assessment, got %v", acked["status"])
	}

	goals, ok := acked["goals"].([]any)
	if !ok || len(goals) != 2 {
		t.Fatalf("expected 2 goals, got %v", acked["goals"])
	}
	goalOneID, _ := goals[0].(map[string]any)["id"].(string)

	rated := putJSON(t, ts, employeeToken, "/api/v1/appraisals/"+appraisalID, map[string]any{
		"selfRatings": []map[string]any{
			{"goalId": goalOneID, "rating": 4, "comment": "Delivered ahead of plan"},
			{"goalId": goalTwoID, "rating": 3},
		},
	})
	ratedGoals := rated["goals"].([]any)
	if got := ratedGoals[0].(map[string]any)["selfRating"]; got != float64(4) {
		t.Fatalf("expected selfRating 4, got %v", got)
	}

	putJSON(t, ts, employeeToken, "/api/v1/appraisals/"+appraisalID, map[string]any{
		"status": "appraiser_evaluation",
	})

	evaluated := putJSON(t, ts, leadToken, "/api/v1/appraisals/"+appraisalID, map[string]any{
		"appraiserRatings": []map[string]any{
			{"goalId": goalOneID, "rating": 5, "comment": "Strong execution"},
			{"goalId": goalTwoID, "rating": 4},
		},
		"appraiserOverallRating":   4,
		"appraiserOverallComments": "Solid year across both goals",
	})
	if got := evaluated["appraiserOverallRating"]; got != float64(4) {
		t.Fatalf("expected overall 4, got %v", got)
	}

	putJSON(t, ts, leadToken, "/api/v1/appraisals/"+appraisalID, map[string]any{
		"status": "reviewer_evaluation",
	})

	putJSON(t, ts, managerToken, "/api/v1/appraisals/"+appraisalID, map[string]any{
		"reviewerOverallRating":   4,
		"reviewerOverallComments": "Endorsed, promote to the next band",
	})

	completed := putJSON(t, ts, managerToken, "/api/v1/appraisals/"+appraisalID, map[string]any{
		"status": "complete",
	})
	if completed["status"] != "complete" {
		t.Fatalf("expected complete, got %v", completed["status"])
	}

	contentType, pdf := getBinary(t, ts, employeeToken, "/api/v1/appraisals/"+appraisalID+"/report.pdf", http.StatusOK)
	if contentType != "application/pdf" {
		t.Fatalf("expected pdf content type, got %s", contentType)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("expected PDF payload, got %q", pdf[:min(len(pdf), 8)])
	}

	trail, total := getJSONWithMetaStatus(t, ts, adminToken,
		"/api/v1/audit/events?entityType=appraisal&entityId="+appraisalID+"&action=appraisal.status.change&includeDetails=true",
		http.StatusOK)
	if total != 5 {
		t.Fatalf("expected 5 status change events, got %d", total)
	}
	events := envelopeDataSlice(t, trail)
	seen := map[string]bool{}
	for _, raw := range events {
		evt := raw.(map[string]any)
		after, _ := evt["after"].(map[string]any)
		if status, _ := after["status"].(string); status != "" {
			seen[status] = true
		}
	}
	for _, status := range []string{"submitted", "self_assessment", "appraiser_evaluation", "reviewer_evaluation", "complete"} {
		if !seen[status] {
			t.Fatalf("missing status change to %s in audit trail, saw %v", status, seen)
		}
	}

	summary := getJSON(t, ts, managerToken, "/api/v1/reports/appraisals/summary")
	if tot, _ := summary["totalAppraisals"].(float64); tot < 1 {
		t.Fatalf("expected at least one appraisal in summary, got %v", summary["totalAppraisals"])
	}
	counts, _ := summary["statusCounts"].(map[string]any)
	if done, _ := counts["complete"].(float64); done < 1 {
		t.Fatalf("expected at least one completed appraisal, got %v", counts)
	}
}

// TestAppraisalVisibilityFollowsParticipation checks that appraisals are only
// readable by their parties plus the executive tier, never by an unrelated
// employee.
func TestAppraisalVisibilityFollowsParticipation(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	app, err := server.New(ctx, testConfig(dbURL))
	if err != nil {
		t.Fatalf("start app: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	managerToken := login(t, ts, "manager@demo.local", "demo-password")
	ceoToken := login(t, ts, "ceo@demo.local", "demo-password")

	outsiderEmail := fmt.Sprintf("outsider-%d@test.local", time.Now().UnixNano())
	createUserWithRole(t, app, outsiderEmail, "Outsider123!", "Employee")
	outsiderToken := login(t, ts, outsiderEmail, "Outsider123!")

	created := postJSON(t, ts, managerToken, "/api/v1/appraisals", map[string]any{
		"startDate":   "2026-01-01",
		"endDate":     "2026-06-30",
		"appraiseeId": userIDByEmail(t, app, "employee@demo.local"),
		"appraiserId": userIDByEmail(t, app, "lead@demo.local"),
		"reviewerId":  userIDByEmail(t, app, "manager@demo.local"),
		"goals": []map[string]any{
			{"title": "Stabilise the ingest path", "weightage": 100},
		},
	})
	appraisalID := created["id"].(string)

	env := getJSONStatus(t, ts, outsiderToken, "/api/v1/appraisals/"+appraisalID, http.StatusForbidden)
	if code := envelopeErrorCode(t, env); code != "forbidden" {
		t.Fatalf("expected forbidden, got %s", code)
	}

	visible := getJSON(t, ts, ceoToken, "/api/v1/appraisals/"+appraisalID)
	if visible["id"] != appraisalID {
		t.Fatalf("expected executive visibility, got %v", visible["id"])
	}

	listed := getJSON(t, ts, outsiderToken, "/api/v1/appraisals")
	items, _ := listed["items"].([]any)
	for _, raw := range items {
		if raw.(map[string]any)["id"] == appraisalID {
			t.Fatalf("appraisal leaked into outsider listing")
		}
	}
}

func login(t *testing.T, ts *httptest.Server, email, password string) string {
	t.Helper()
	data := postJSON(t, ts, "", "/api/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	})
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in %v", email, data)
	}
	return token
}

func postJSON(t *testing.T, ts *httptest.Server, token, path string, body any) map[string]any {
	t.Helper()
	env := sendJSONStatus(t, ts, http.MethodPost, token, path, body, 0)
	return envelopeDataMap(t, env)
}

func putJSON(t *testing.T, ts *httptest.Server, token, path string, body any) map[string]any {
	t.Helper()
	env := sendJSONStatus(t, ts, http.MethodPut, token, path, body, http.StatusOK)
	return envelopeDataMap(t, env)
}

// sendJSONStatus posts a JSON body and decodes the response envelope. A zero
// wantStatus accepts either 200 or 201.
func sendJSONStatus(t *testing.T, ts *httptest.Server, method, token, path string, body any, wantStatus int) envelope {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if wantStatus == 0 {
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			raw, _ := io.ReadAll(resp.Body)
			t.Fatalf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
		}
	} else if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, wantStatus, raw)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return env
}

func getJSON(t *testing.T, ts *httptest.Server, token, path string) map[string]any {
	t.Helper()
	env := getJSONStatus(t, ts, token, path, http.StatusOK)
	return envelopeDataMap(t, env)
}

func getJSONStatus(t *testing.T, ts *httptest.Server, token, path string, wantStatus int) envelope {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status %d, want %d: %s", path, resp.StatusCode, wantStatus, raw)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return env
}

func getBinary(t *testing.T, ts *httptest.Server, token, path string, wantStatus int) (string, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d: %s", path, resp.StatusCode, wantStatus, raw)
	}
	return resp.Header.Get("Content-Type"), raw
}
