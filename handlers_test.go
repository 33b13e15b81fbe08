package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"weighbot/models"
	"weighbot/pkg/config"
	"weighbot/pkg/dedup"
	"weighbot/pkg/dialog"
	"weighbot/pkg/greenapi"
	"weighbot/pkg/store"
	"weighbot/pkg/weight"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type stubExtractor struct{ res weight.Result }

func (s stubExtractor) Extract(context.Context, string) weight.Result { return s.res }

// setupTestServer wires the globals against a temp sqlite database.
func setupTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tmp := t.TempDir()
	cfg = &config.Config{UploadBase: tmp, Weight: config.WeightConfig{Min: 100, Max: 150000}}
	jwtSecret = []byte("test-secret")

	var err error
	st, err = store.Open(filepath.Join(tmp, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := st.EnsureRoles(context.Background()); err != nil {
		t.Fatalf("roles: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	extractor = stubExtractor{res: weight.Result{Weight: 12340, Found: true}}
	whatsapp = nil
	seen = dedup.NewMemory(time.Hour)
	bot = dialog.New(dialog.Config{PhotoDir: filepath.Join(tmp, "photos"), Location: time.UTC}, st, extractor)

	r := gin.New()
	setupRoutes(r)
	return r
}

func login(t *testing.T, r http.Handler, username, password string) (string, string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp := performRequest(r, http.MethodPost, "/login", bytes.NewReader(body), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	token, _ := out["token"].(string)
	refresh, _ := out["refresh_token"].(string)
	if token == "" || refresh == "" {
		t.Fatalf("login response missing tokens: %+v", out)
	}
	return token, refresh
}

func TestHealth(t *testing.T) {
	r := setupTestServer(t)
	resp := performRequest(r, http.MethodGet, "/health", nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("health status=%d body=%s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"database":"ok"`) {
		t.Fatalf("unexpected health body: %s", resp.Body.String())
	}
}

func TestAuthFlow(t *testing.T) {
	r := setupTestServer(t)
	ctx := context.Background()
	if _, err := st.CreateOperator(ctx, "boss", "secret1", models.RoleAdministrator); err != nil {
		t.Fatalf("create operator: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"username": "boss", "password": "wrong"})
	if resp := performRequest(r, http.MethodPost, "/login", bytes.NewReader(body), "", "application/json"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status=%d", resp.Code)
	}

	token, refresh := login(t, r, "boss", "secret1")

	if resp := performRequest(r, http.MethodGet, "/me", nil, "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("me without token status=%d", resp.Code)
	}
	resp := performRequest(r, http.MethodGet, "/me", nil, token, "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"role":"administrator"`) {
		t.Fatalf("me status=%d body=%s", resp.Code, resp.Body.String())
	}

	// refresh rotates: the old refresh token stops working
	rb, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewReader(rb), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("refresh status=%d body=%s", resp.Code, resp.Body.String())
	}
	var rot map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &rot)
	newRefresh, _ := rot["refresh_token"].(string)
	if newRefresh == "" || newRefresh == refresh {
		t.Fatalf("refresh token not rotated: %+v", rot)
	}
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewReader(rb), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status=%d", resp.Code)
	}

	nb, _ := json.Marshal(map[string]string{"refresh_token": newRefresh})
	if resp := performRequest(r, http.MethodPost, "/revoke_refresh", bytes.NewReader(nb), "", "application/json"); resp.Code != http.StatusOK {
		t.Fatalf("revoke status=%d body=%s", resp.Code, resp.Body.String())
	}
	if resp := performRequest(r, http.MethodPost, "/refresh", bytes.NewReader(nb), "", "application/json"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("revoked refresh token status=%d", resp.Code)
	}
}

func TestCreateOperatorRequiresAdmin(t *testing.T) {
	r := setupTestServer(t)
	ctx := context.Background()
	if _, err := st.CreateOperator(ctx, "boss", "secret1", models.RoleAdministrator); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := st.CreateOperator(ctx, "clerk", "secret2", models.RoleOperator); err != nil {
		t.Fatalf("create operator: %v", err)
	}
	body, _ := json.Marshal(map[string]string{"username": "new1", "password": "secret3"})

	clerk, _ := login(t, r, "clerk", "secret2")
	if resp := performRequest(r, http.MethodPost, "/operators", bytes.NewReader(body), clerk, "application/json"); resp.Code != http.StatusForbidden {
		t.Fatalf("operator create as clerk status=%d", resp.Code)
	}

	admin, _ := login(t, r, "boss", "secret1")
	resp := performRequest(r, http.MethodPost, "/operators", bytes.NewReader(body), admin, "application/json")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"role":"operator"`) {
		t.Fatalf("operator create status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/operators", bytes.NewReader(body), admin, "application/json")
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate operator status=%d", resp.Code)
	}
	login(t, r, "new1", "secret3")
}

func TestWeighingEndpoints(t *testing.T) {
	r := setupTestServer(t)
	ctx := context.Background()
	if _, err := st.CreateOperator(ctx, "clerk", "secret2", models.RoleOperator); err != nil {
		t.Fatalf("create operator: %v", err)
	}
	if _, err := st.RegisterDriver(ctx, "79001234567", "Иванов Иван", "79001234567", "А123ВС"); err != nil {
		t.Fatalf("register driver: %v", err)
	}
	for _, kg := range []float64{12000, 12550} {
		w := &models.Weighing{DriverChatID: "79001234567", TruckNumber: "А123ВС", DriverName: "Иванов Иван", ClientName: "ООО Ромашка", CurrentWeight: kg}
		if err := st.SaveWeighing(ctx, w); err != nil {
			t.Fatalf("save weighing: %v", err)
		}
	}
	token, _ := login(t, r, "clerk", "secret2")

	resp := performRequest(r, http.MethodGet, "/weighings?truck="+url.QueryEscape("а123вс"), nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("weighings status=%d body=%s", resp.Code, resp.Body.String())
	}
	var items []models.Weighing
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode weighings: %v", err)
	}
	if len(items) != 2 || items[0].CurrentWeight != 12550 || items[0].WeightDifference != 550 {
		t.Fatalf("unexpected weighings: %+v", items)
	}

	if resp := performRequest(r, http.MethodGet, "/weighings?limit=abc", nil, token, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", resp.Code)
	}
	if resp := performRequest(r, http.MethodGet, "/weighings?from=05.03.2026", nil, token, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad from status=%d", resp.Code)
	}

	resp = performRequest(r, http.MethodGet, "/weighings/export", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("export status=%d body=%s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("export content type %q", ct)
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("PK")) {
		t.Fatalf("export is not a zip container")
	}

	resp = performRequest(r, http.MethodGet, "/vehicles/"+url.PathEscape("А123ВС"), nil, token, "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"stats"`) {
		t.Fatalf("vehicle status=%d body=%s", resp.Code, resp.Body.String())
	}
	if resp := performRequest(r, http.MethodGet, "/vehicles/X000XX", nil, token, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown vehicle status=%d", resp.Code)
	}

	resp = performRequest(r, http.MethodGet, "/drivers", nil, token, "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "79001234567") {
		t.Fatalf("drivers status=%d body=%s", resp.Code, resp.Body.String())
	}
}

func TestExtractEndpoint(t *testing.T) {
	r := setupTestServer(t)
	if _, err := st.CreateOperator(context.Background(), "clerk", "secret2", models.RoleOperator); err != nil {
		t.Fatalf("create operator: %v", err)
	}
	token, _ := login(t, r, "clerk", "secret2")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, _ := w.CreateFormFile("file", "scale.jpg")
	_, _ = fw.Write([]byte("jpeg bytes"))
	_ = w.Close()

	resp := performRequest(r, http.MethodPost, "/extract", &buf, token, w.FormDataContentType())
	if resp.Code != http.StatusOK {
		t.Fatalf("extract status=%d body=%s", resp.Code, resp.Body.String())
	}
	var res weight.Result
	if err := json.Unmarshal(resp.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Found || res.Weight != 12340 {
		t.Fatalf("unexpected result: %+v", res)
	}

	resp = performRequest(r, http.MethodPost, "/extract", strings.NewReader("{}"), token, "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("extract without file status=%d", resp.Code)
	}
}

type gatewayRecorder struct {
	mu   sync.Mutex
	sent []map[string]any
}

func (g *gatewayRecorder) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	g.mu.Lock()
	g.sent = append(g.sent, body)
	g.mu.Unlock()
	_, _ = w.Write([]byte(`{"idMessage":"OUT1"}`))
}

func (g *gatewayRecorder) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func TestWebhook(t *testing.T) {
	r := setupTestServer(t)
	gw := &gatewayRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(gw.handler))
	defer srv.Close()
	whatsapp = greenapi.NewClient(greenapi.Config{BaseURL: srv.URL, IDInstance: "1101", TokenInstance: "tok"})
	cfg.GreenAPI.WebhookToken = "hook-secret"

	payload := `{"typeWebhook":"incomingMessageReceived","idMessage":"ABC1",
		"senderData":{"chatId":"79001234567@c.us"},
		"messageData":{"typeMessage":"textMessage","textMessageData":{"textMessage":"1"}}}`

	if resp := performRequest(r, http.MethodPost, "/webhook", strings.NewReader(payload), "", "application/json"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("webhook without token status=%d", resp.Code)
	}

	resp := performRequest(r, http.MethodPost, "/webhook", strings.NewReader(payload), "hook-secret", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("webhook status=%d body=%s", resp.Code, resp.Body.String())
	}
	if gw.count() != 1 {
		t.Fatalf("expected one reply, got %d", gw.count())
	}
	if chatID, _ := gw.sent[0]["chatId"].(string); chatID != "79001234567@c.us" {
		t.Fatalf("reply sent to %q", chatID)
	}
	if state, err := st.State(context.Background(), "79001234567"); err != nil || state.State != dialog.StateRegistrationName {
		t.Fatalf("unregistered sender should start registration, state=%+v err=%v", state, err)
	}

	// redelivery of the same message is acknowledged without a second reply
	resp = performRequest(r, http.MethodPost, "/webhook", strings.NewReader(payload), "hook-secret", "application/json")
	if resp.Code != http.StatusOK || gw.count() != 1 {
		t.Fatalf("duplicate delivery status=%d replies=%d", resp.Code, gw.count())
	}

	status := `{"typeWebhook":"outgoingMessageStatus","idMessage":"OUT1"}`
	resp = performRequest(r, http.MethodPost, "/webhook", strings.NewReader(status), "hook-secret", "application/json")
	if resp.Code != http.StatusOK || gw.count() != 1 {
		t.Fatalf("status notification status=%d replies=%d", resp.Code, gw.count())
	}
}
