package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/redlinehq/redline/backend/internal/auth"
	"github.com/redlinehq/redline/backend/internal/registry"
	"github.com/redlinehq/redline/backend/internal/server"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionIssuer        = "redline-auth"
	sessionAudience      = "redline-api"
	documentID           = "doc-integration"
	jsonContentType      = "application/json"
)

func TestAuthAndHistoryFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	reg, err := registry.NewRegistry(registry.RegistryConfig{
		RootDir: testContext.TempDir(),
	})
	if err != nil {
		testContext.Fatalf("failed to construct registry: %v", err)
	}
	defer func() { _ = reg.CloseAll() }()

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		Audience:      sessionAudience,
		TokenTTL:      time.Hour,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: issuer,
		Registry:     reg,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	aliceToken := mustIssueSession(testContext, testServer.URL, "alice", "Alice A.")
	bobToken := mustIssueSession(testContext, testServer.URL, "bob", "Bob B.")

	mustDo(testContext, testServer.URL, http.MethodPost, "/documents/"+documentID+"/open", aliceToken, nil, http.StatusOK)

	alicePatch := map[string]any{
		"timestamp": 1000,
		"kind":      "semantic_group",
		"data":      `[{"kind":"replace_text","range":[0,5],"insertedText":"aaa"}]`,
		"uuid":      "p-alice",
	}
	bobPatch := map[string]any{
		"timestamp": 2000,
		"kind":      "semantic_group",
		"data":      `[{"kind":"replace_text","range":[3,8],"insertedText":"bbb"}]`,
		"uuid":      "p-bob",
	}
	mustDo(testContext, testServer.URL, http.MethodPost, "/documents/"+documentID+"/patches", aliceToken, alicePatch, http.StatusOK)
	mustDo(testContext, testServer.URL, http.MethodPost, "/documents/"+documentID+"/patches", bobToken, bobPatch, http.StatusOK)

	scanned := mustDo(testContext, testServer.URL, http.MethodPost, "/documents/"+documentID+"/detect-conflicts", aliceToken, nil, http.StatusOK)
	var scanPayload struct {
		Conflicts []struct {
			ID     string `json:"id"`
			Type   string `json:"conflictType"`
			Status string `json:"status"`
			Local  struct {
				Author string `json:"author"`
			} `json:"localVersion"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal(scanned, &scanPayload); err != nil {
		testContext.Fatalf("failed to decode scan response: %v", err)
	}
	if len(scanPayload.Conflicts) != 1 {
		testContext.Fatalf("expected one conflict, got %#v", scanPayload.Conflicts)
	}
	detected := scanPayload.Conflicts[0]
	if detected.Type != "OverlappingEdit" || detected.Status != "Unresolved" {
		testContext.Fatalf("unexpected conflict classification: %#v", detected)
	}

	resolveBody := map[string]any{"status": "ResolvedMerged", "merged_content": "aaabbb"}
	mustDo(testContext, testServer.URL, http.MethodPost, "/documents/"+documentID+"/conflicts/"+detected.ID+"/resolve", bobToken, resolveBody, http.StatusNoContent)

	counted := mustDo(testContext, testServer.URL, http.MethodGet, "/documents/"+documentID+"/conflicts/count", bobToken, nil, http.StatusOK)
	var countPayload struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(counted, &countPayload); err != nil {
		testContext.Fatalf("failed to decode count response: %v", err)
	}
	if countPayload.Count != 0 {
		testContext.Fatalf("expected resolution to clear the queue, got %d", countPayload.Count)
	}

	reviewBody := map[string]any{"patch_uuid": "p-alice", "decision": "accepted"}
	reviewed := mustDo(testContext, testServer.URL, http.MethodPost, "/documents/"+documentID+"/reviews", bobToken, reviewBody, http.StatusOK)
	var reviewPayload struct {
		ReviewerID   string  `json:"reviewerId"`
		Decision     string  `json:"decision"`
		ReviewerName *string `json:"reviewerName"`
	}
	if err := json.Unmarshal(reviewed, &reviewPayload); err != nil {
		testContext.Fatalf("failed to decode review response: %v", err)
	}
	if reviewPayload.ReviewerID != "bob" || reviewPayload.Decision != "accepted" {
		testContext.Fatalf("unexpected review record: %#v", reviewPayload)
	}
	if reviewPayload.ReviewerName == nil || *reviewPayload.ReviewerName != "Bob B." {
		testContext.Fatalf("expected session display name on review, got %#v", reviewPayload.ReviewerName)
	}
}

func mustIssueSession(testContext *testing.T, baseURL, collaboratorID, displayName string) string {
	testContext.Helper()

	body := mustDo(testContext, baseURL, http.MethodPost, "/auth/session", "", map[string]any{
		"collaborator_id": collaboratorID,
		"display_name":    displayName,
	}, http.StatusOK)

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		testContext.Fatalf("failed to decode session response: %v", err)
	}
	if payload.AccessToken == "" || payload.TokenType != "Bearer" {
		testContext.Fatalf("unexpected session payload: %#v", payload)
	}
	return payload.AccessToken
}

func mustDo(testContext *testing.T, baseURL, method, path, token string, body any, wantStatus int) []byte {
	testContext.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()

	var buffer bytes.Buffer
	if _, err := buffer.ReadFrom(response.Body); err != nil {
		testContext.Fatalf("failed to read response body: %v", err)
	}
	if response.StatusCode != wantStatus {
		testContext.Fatalf("unexpected status for %s %s: got %d, want %d (body %s)", method, path, response.StatusCode, wantStatus, buffer.String())
	}
	return buffer.Bytes()
}
