package apiapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/blobstore"
	"github.com/liftcare/liftsuite/internal/middleware"
	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/qrcode"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/security"
	"github.com/liftcare/liftsuite/internal/store"
)

const testPassword = "correct-horse-battery"

type testEnv struct {
	t       *testing.T
	handler http.Handler
	store   *store.Store
	hash    string
}

type actor struct {
	user    model.User
	session string
	csrf    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test adjust the handler dependencies before they are used.
func newTestEnvWith(t *testing.T, adjust func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", filepath.Join(t.TempDir(), "test.db"))
	st, err := store.Open(ctx, "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.InitSchema(ctx))

	blobs, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	signer, err := qrcode.NewSigner("test-signing-key-1234", 0)
	require.NoError(t, err)
	hash, err := security.HashPassword(testPassword)
	require.NoError(t, err)

	deps := Deps{
		Store:         st,
		Blobs:         blobs,
		Hub:           realtime.NewHub(realtime.NewMemoryBroker(), zap.NewNop()),
		Signer:        signer,
		Logger:        zap.NewNop(),
		PublicBaseURL: "https://lifts.example.com",
		CompanyName:   "Elevadores Demo",
	}
	if adjust != nil {
		adjust(&deps)
	}
	handler, err := NewHandler(deps)
	require.NoError(t, err)
	return &testEnv{t: t, handler: handler, store: st, hash: hash}
}

// actor creates a user with a live session, skipping the rate limited login route.
func (e *testEnv) actor(role model.Role, clientID string) *actor {
	e.t.Helper()
	ctx := context.Background()
	u := model.User{
		Email:        fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()),
		FullName:     "Test " + string(role),
		Role:         role,
		ClientID:     clientID,
		PasswordHash: e.hash,
		Active:       true,
	}
	require.NoError(e.t, e.store.CreateUser(ctx, &u))
	sessionID, err := security.RandomToken(32)
	require.NoError(e.t, err)
	csrfToken, err := security.RandomToken(32)
	require.NoError(e.t, err)
	now := time.Now()
	require.NoError(e.t, e.store.CreateSession(ctx, model.Session{
		ID:         sessionID,
		UserID:     u.ID,
		CSRFToken:  csrfToken,
		ExpiresAt:  model.TimestampOf(now.Add(time.Hour)),
		CreatedAt:  model.TimestampOf(now),
		LastSeenAt: model.TimestampOf(now),
	}))
	return &actor{user: u, session: sessionID, csrf: csrfToken}
}

func (e *testEnv) send(req *http.Request, as *actor) *httptest.ResponseRecorder {
	if as != nil {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: as.session})
		req.Header.Set(csrfHeaderName, as.csrf)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) do(method, path string, as *actor, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(req, as)
}

func (e *testEnv) upload(path string, as *actor, field, fileName string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile(field, fileName)
	require.NoError(e.t, err)
	_, err = part.Write(data)
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req, as)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// fixture seeds a client with one elevator and returns both.
func (e *testEnv) fixture(name, code string) (model.Client, model.Elevator) {
	e.t.Helper()
	ctx := context.Background()
	c := model.Client{Name: name, Email: strings.ToLower(strings.ReplaceAll(name, " ", "")) + "@example.com"}
	require.NoError(e.t, e.store.CreateClient(ctx, &c))
	el := model.Elevator{ClientID: c.ID, Code: code, BuildingName: name + " Tower", Address: "Av. Reforma 100", Floors: 12}
	require.NoError(e.t, e.store.CreateElevator(ctx, &el))
	return c, el
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngWithDeclaredSize returns a small PNG whose header claims w×h pixels.
func pngWithDeclaredSize(t *testing.T, w, h uint32) []byte {
	t.Helper()
	raw := pngBytes(t, 8, 8)
	// Signature (8) + length (4) + "IHDR" (4), then width and height.
	binary.BigEndian.PutUint32(raw[16:20], w)
	binary.BigEndian.PutUint32(raw[20:24], h)
	binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))
	return raw
}

func signatureDataURL(t *testing.T) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 40, 20))
}

func TestLoginIssuesSessionAndCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")

	rec := env.do(http.MethodPost, "/api/auth/login", nil, map[string]string{"email": admin.user.Email, "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.NotEmpty(t, body["csrfToken"])

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(session)
	me := env.send(req, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), admin.user.Email)

	rec = env.do(http.MethodPost, "/api/auth/login", nil, map[string]string{"email": admin.user.Email, "password": "wrong-password-123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
}

func TestLoginRateLimitKeysOnForwardedAddress(t *testing.T) {
	login := func(env *testEnv, forwardedFor string) int {
		body, err := json.Marshal(map[string]string{"email": "nobody@example.com", "password": "wrong-password-123"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		return env.send(req, nil).Code
	}

	// httptest requests come from 192.0.2.1, standing in for the client app.
	behindProxy := newTestEnvWith(t, func(d *Deps) {
		trusted, err := middleware.ParseTrustedProxies("192.0.2.1")
		require.NoError(t, err)
		d.TrustedProxies = trusted
	})
	for i := 1; i <= 7; i++ {
		assert.Equal(t, http.StatusUnauthorized, login(behindProxy, fmt.Sprintf("198.51.100.%d", i)))
	}
	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		codes = append(codes, login(behindProxy, "203.0.113.5"))
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[5])

	untrusted := newTestEnv(t)
	codes = codes[:0]
	for i := 1; i <= 6; i++ {
		codes = append(codes, login(untrusted, fmt.Sprintf("198.51.100.%d", i)))
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[5])
}

func TestAuthAndCSRFGuards(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")

	rec := env.do(http.MethodGet, "/api/work-orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/clients", strings.NewReader(`{"name":"Acme"}`))
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: admin.session})
	rec = env.send(req, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"csrf validation failed"}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/clients", admin, map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRoleGates(t *testing.T) {
	env := newTestEnv(t)
	client, _ := env.fixture("Torre Norte", "ELV-001")
	tech := env.actor(model.RoleTechnician, "")
	portal := env.actor(model.RoleClient, client.ID)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/clients", tech, map[string]string{"name": "X"}).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/quotations", tech, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/analytics", portal, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/exports/quotations.csv", tech, nil).Code)
}

func TestClientUsersOnlySeeTheirOwnRecords(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	mine, myElevator := env.fixture("Torre Norte", "ELV-001")
	_, otherElevator := env.fixture("Plaza Sur", "ELV-002")
	portal := env.actor(model.RoleClient, mine.ID)

	own := decodeBody[model.WorkOrder](t, env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": myElevator.ID, "title": "Door sensor",
	}))
	foreign := decodeBody[model.WorkOrder](t, env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": otherElevator.ID, "title": "Cable inspection",
	}))

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/work-orders/"+own.ID, portal, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/work-orders/"+foreign.ID, portal, nil).Code)

	list := decodeBody[map[string]any](t, env.do(http.MethodGet, "/api/work-orders", portal, nil))
	assert.EqualValues(t, 1, list["total"])

	rec := env.do(http.MethodGet, "/api/elevators/"+otherElevator.ID, portal, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")

	rec := env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId":         elevator.ID,
		"technicianId":       tech.user.ID,
		"title":              "Replace door rollers",
		"priority":           "high",
		"estimatedCostCents": 250000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wo := decodeBody[model.WorkOrder](t, rec)
	assert.Equal(t, fmt.Sprintf("OT-%d-0001", time.Now().UTC().Year()), wo.Folio)
	assert.Equal(t, model.WorkOrderAssigned, wo.Status)

	unread, err := env.store.CountUnreadNotifications(context.Background(), tech.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	path := "/api/work-orders/" + wo.ID + "/status"
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, path, tech, map[string]any{"status": "cancelled"}).Code)
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, path, tech, map[string]any{"status": "pending"}).Code)

	rec = env.do(http.MethodPost, path, tech, map[string]any{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, path, tech, map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, path, tech, map[string]any{"status": "completed", "actualCostCents": 231000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeBody[model.WorkOrder](t, rec)
	assert.Equal(t, model.WorkOrderCompleted, done.Status)
	assert.EqualValues(t, 231000, done.ActualCostCents)
	assert.False(t, done.CompletedAt.IsZero())

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, path, admin, map[string]any{"status": "in_progress"}).Code)

	second := decodeBody[model.WorkOrder](t, env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": elevator.ID, "title": "Lubrication",
	}))
	assert.Equal(t, fmt.Sprintf("OT-%d-0002", time.Now().UTC().Year()), second.Folio)
	assert.Equal(t, model.WorkOrderPending, second.Status)
}

func TestCompletedWorkOrderIsFinal(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")

	wo := decodeBody[model.WorkOrder](t, env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": elevator.ID, "technicianId": tech.user.ID, "title": "Brake check",
	}))
	path := "/api/work-orders/" + wo.ID + "/status"
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, path, tech, map[string]any{"status": "in_progress"}).Code)
	rec := env.do(http.MethodPost, path, tech, map[string]any{"status": "completed", "actualCostCents": 1000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeBody[model.WorkOrder](t, rec)

	rec = env.do(http.MethodPost, path, tech, map[string]any{"status": "completed", "actualCostCents": 999999})
	assert.Equal(t, http.StatusConflict, rec.Code)

	stored, err := env.store.GetWorkOrder(context.Background(), wo.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, stored.ActualCostCents)
	assert.Equal(t, done.CompletedAt, stored.CompletedAt)
}

func TestWorkOrderUpdateKeepsTechnicianWhenOmitted(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")

	wo := decodeBody[model.WorkOrder](t, env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": elevator.ID, "technicianId": tech.user.ID, "title": "Cable inspection",
	}))
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/work-orders/"+wo.ID+"/status", tech, map[string]any{"status": "in_progress"}).Code)

	rec := env.do(http.MethodPut, "/api/work-orders/"+wo.ID, admin, map[string]any{
		"elevatorId": elevator.ID, "title": "Cable inspection and tension",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[model.WorkOrder](t, rec)
	assert.Equal(t, tech.user.ID, updated.TechnicianID)
	assert.Equal(t, model.WorkOrderInProgress, updated.Status)
	assert.Equal(t, "Cable inspection and tension", updated.Title)
}

func TestWorkOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")

	rec := env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{"title": "No elevator"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"elevatorId is required"}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{"elevatorId": "missing", "title": "Ghost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"elevator does not exist"}`, rec.Body.String())
}

func TestQuotationDecision(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	client, elevator := env.fixture("Torre Norte", "ELV-001")
	portal := env.actor(model.RoleClient, client.ID)
	tech := env.actor(model.RoleTechnician, "")

	validUntil := time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	rec := env.do(http.MethodPost, "/api/quotations", admin, map[string]any{
		"clientId":   client.ID,
		"elevatorId": elevator.ID,
		"title":      "Modernización de cabina",
		"items":      []map[string]any{{"description": "Panel", "quantity": 2, "unitPriceCents": 15000}},
		"taxRateBp":  1600,
		"validUntil": validUntil,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	q := decodeBody[model.Quotation](t, rec)
	assert.Equal(t, model.QuotationDraft, q.Status)
	assert.EqualValues(t, 30000, q.SubtotalCents)
	assert.EqualValues(t, 4800, q.TaxCents)
	assert.EqualValues(t, 34800, q.TotalCents)

	decide := "/api/quotations/" + q.ID + "/decision"
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, decide, portal, map[string]string{"decision": "approved"}).Code)

	rec = env.do(http.MethodPut, "/api/quotations/"+q.ID, admin, map[string]any{
		"clientId":   client.ID,
		"elevatorId": elevator.ID,
		"title":      "Modernización de cabina",
		"items":      []map[string]any{{"description": "Panel", "quantity": 2, "unitPriceCents": 15000}},
		"taxRateBp":  1600,
		"validUntil": validUntil,
		"status":     "sent",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, decide, tech, map[string]string{"decision": "approved"}).Code)

	rec = env.do(http.MethodPost, decide, portal, map[string]string{"decision": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decided := decodeBody[model.Quotation](t, rec)
	assert.Equal(t, model.QuotationApproved, decided.Status)
	assert.False(t, decided.DecidedAt.IsZero())

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, decide, portal, map[string]string{"decision": "rejected"}).Code)
}

func TestQuotationCannotBeSentWithPastValidity(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	client, elevator := env.fixture("Torre Norte", "ELV-001")

	rec := env.do(http.MethodPost, "/api/quotations", admin, map[string]any{
		"clientId":   client.ID,
		"elevatorId": elevator.ID,
		"title":      "Cable replacement",
		"items":      []map[string]any{{"description": "Cable", "quantity": 1, "unitPriceCents": 90000}},
		"validUntil": "2001-01-01",
		"status":     "sent",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkOrderPDFHonoursETag(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")
	wo := decodeBody[model.WorkOrder](t, env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": elevator.ID, "title": "Revisión / frenos",
	}))

	rec := env.do(http.MethodGet, "/api/work-orders/"+wo.ID+"/pdf", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	disposition := rec.Header().Get("Content-Disposition")
	assert.Contains(t, disposition, ".pdf")
	assert.NotContains(t, disposition, "/")
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/work-orders/"+wo.ID+"/pdf", nil)
	req.Header.Set("If-None-Match", etag)
	rec = env.send(req, admin)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestPublicQRLookupAndRotation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")

	first := decodeBody[map[string]any](t, env.do(http.MethodPost, "/api/elevators/"+elevator.ID+"/qr", admin, nil))
	token, _ := first["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, "https://lifts.example.com/qr/"+token, first["url"])

	rec := env.do(http.MethodGet, "/api/public/qr/"+token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decodeBody[publicElevatorInfo](t, rec)
	assert.Equal(t, "ELV-001", info.Code)
	assert.Equal(t, model.ElevatorOperational, info.Status)
	assert.False(t, info.OpenEmergency)

	second := decodeBody[map[string]any](t, env.do(http.MethodPost, "/api/elevators/"+elevator.ID+"/qr", admin, nil))
	assert.NotEqual(t, token, second["token"])
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/public/qr/"+token, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/public/qr/not-a-token", nil, nil).Code)

	rec = env.do(http.MethodGet, "/api/elevators/"+elevator.ID+"/qr.png?size=128", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestExportWorkOrdersCSV(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")
	env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{"elevatorId": elevator.ID, "title": "Door sensor"})

	rec := env.do(http.MethodGet, "/api/exports/work-orders.csv", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "work-orders_")
	rows, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Folio", rows[0][0])
	assert.Equal(t, "ELV-001", rows[1][2])

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/exports/users.csv", admin, nil).Code)
}

func TestImportElevatorsFromCSV(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	client, _ := env.fixture("Torre Norte", "ELV-001")

	data := "client,code,building,floors\n" +
		client.Name + ",ELV-100,Torre Norte B,8\n" +
		"Unknown Client,ELV-101,Nowhere,3\n"
	rec := env.upload("/api/elevators/import", admin, "file", "elevators.csv", []byte(data), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[ImportResult](t, rec)
	assert.Equal(t, 1, result.Created)
	assert.Len(t, result.Errors, 1)

	items, err := env.store.AllElevators(context.Background(), store.ListFilter{ClientID: client.ID})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestMaintenanceCompletionSchedulesNextVisit(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")
	today := time.Now().Format("2006-01-02")

	rec := env.do(http.MethodPost, "/api/maintenance", admin, map[string]any{
		"elevatorId":    elevator.ID,
		"technicianId":  tech.user.ID,
		"scheduledDate": today,
		"frequency":     "monthly",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decodeBody[model.MaintenanceSchedule](t, rec)
	require.NotEmpty(t, m.Checklist)

	rec = env.do(http.MethodPost, "/api/maintenance/"+m.ID+"/status", tech, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	current, err := env.store.GetElevator(context.Background(), elevator.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ElevatorMaintenance, current.Status)

	checklist := m.Checklist
	for i := range checklist {
		checklist[i].Checked = true
	}
	rec = env.do(http.MethodPost, "/api/maintenance/"+m.ID+"/complete", tech, map[string]any{
		"checklist": checklist,
		"signature": signatureDataURL(t),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/maintenance/"+m.ID+"/complete", tech, map[string]any{
		"checklist": checklist,
		"notes":     "All good",
		"signedBy":  "Ana Pérez",
		"signature": signatureDataURL(t),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[struct {
		Maintenance model.MaintenanceSchedule  `json:"maintenance"`
		Next        *model.MaintenanceSchedule `json:"next"`
	}](t, rec)
	assert.Equal(t, model.MaintenanceCompleted, out.Maintenance.Status)
	assert.Equal(t, "Ana Pérez", out.Maintenance.SignedBy)
	require.NotNil(t, out.Next)
	want, ok := model.NextOccurrence(today, model.FrequencyMonthly)
	require.True(t, ok)
	assert.Equal(t, want, out.Next.ScheduledDate)
	assert.Equal(t, model.MaintenanceScheduled, out.Next.Status)

	current, err = env.store.GetElevator(context.Background(), elevator.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ElevatorOperational, current.Status)

	attachments := decodeBody[map[string][]model.Attachment](t, env.do(http.MethodGet, "/api/maintenance/"+m.ID+"/attachments", admin, nil))
	require.Len(t, attachments["items"], 1)
	assert.Equal(t, model.AttachmentSignature, attachments["items"][0].Kind)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/maintenance/"+m.ID+"/complete", tech, map[string]any{}).Code)
}

func TestTechniciansOnlyCompleteTheirOwnMaintenance(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")

	rec := env.do(http.MethodPost, "/api/maintenance", admin, map[string]any{
		"elevatorId":    elevator.ID,
		"scheduledDate": time.Now().Format("2006-01-02"),
		"frequency":     "once",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decodeBody[model.MaintenanceSchedule](t, rec)
	require.Empty(t, m.TechnicianID)

	rec = env.do(http.MethodPost, "/api/maintenance/"+m.ID+"/complete", tech, map[string]any{"checklist": m.Checklist})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/maintenance/"+m.ID+"/complete", admin, map[string]any{"checklist": m.Checklist})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := env.store.GetMaintenance(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MaintenanceCompleted, stored.Status)
	assert.Empty(t, stored.TechnicianID)
}

func TestTrappedEmergencyStopsElevatorUntilResolved(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")
	client, elevator := env.fixture("Torre Norte", "ELV-001")
	portal := env.actor(model.RoleClient, client.ID)
	_, foreign := env.fixture("Plaza Sur", "ELV-002")

	rec := env.do(http.MethodPost, "/api/emergencies", portal, map[string]any{
		"elevatorId": foreign.ID, "failureType": "Stuck",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/emergencies", portal, map[string]any{
		"elevatorId": elevator.ID, "failureType": "Stuck between floors", "passengersTrapped": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	e := decodeBody[model.EmergencyVisit](t, rec)
	assert.Equal(t, model.EmergencyReported, e.Status)

	current, err := env.store.GetElevator(context.Background(), elevator.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ElevatorStopped, current.Status)

	unread, err := env.store.CountUnreadNotifications(context.Background(), admin.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	list := decodeBody[map[string]any](t, env.do(http.MethodGet, "/api/emergencies", tech, nil))
	assert.EqualValues(t, 1, list["total"])

	path := "/api/emergencies/" + e.ID + "/status"
	rec = env.do(http.MethodPost, path, tech, map[string]string{"status": "on_site"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	onSite := decodeBody[model.EmergencyVisit](t, rec)
	assert.Equal(t, tech.user.ID, onSite.TechnicianID)
	assert.False(t, onSite.ArrivedAt.IsZero())

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, path, tech, map[string]string{"status": "en_route"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, path, tech, map[string]string{"status": "resolved"}).Code)

	rec = env.do(http.MethodPost, path, tech, map[string]string{"status": "resolved", "resolution": "Reset the controller"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decodeBody[model.EmergencyVisit](t, rec)
	assert.False(t, resolved.ResolvedAt.IsZero())

	current, err = env.store.GetElevator(context.Background(), elevator.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ElevatorOperational, current.Status)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, path, tech, map[string]string{"status": "resolved", "resolution": "again"}).Code)
}

func TestPhotoUploadIsResized(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")
	wo := decodeBody[model.WorkOrder](t, env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": elevator.ID, "title": "Pit inspection",
	}))

	rec := env.upload("/api/work-orders/"+wo.ID+"/attachments", admin, "photo", "pit.png", pngBytes(t, 2000, 1000), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeBody[model.Attachment](t, rec)
	assert.Equal(t, "image/png", a.Mime)

	rec = env.do(http.MethodGet, "/api/attachments/"+a.ID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1600, cfg.Width)
	assert.Equal(t, 800, cfg.Height)

	rec = env.upload("/api/work-orders/"+wo.ID+"/attachments", admin, "photo", "notes.txt", []byte("plain text"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/attachments/"+a.ID, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/attachments/"+a.ID, admin, nil).Code)
}

func TestOversizedImagesAreRejectedBeforeDecoding(t *testing.T) {
	huge := pngWithDeclaredSize(t, 16000, 16000)
	cfg, err := png.DecodeConfig(bytes.NewReader(huge))
	require.NoError(t, err)
	require.Equal(t, 16000, cfg.Width)

	assert.ErrorContains(t, checkImageSize(huge, maxPhotoPixels), "too large")
	assert.NoError(t, checkImageSize(pngBytes(t, 200, 100), maxPhotoPixels))
	_, _, err = processUploadedPhotoBytes(huge, maxPhotoEdge)
	assert.ErrorContains(t, err, "too large")

	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")
	wo := decodeBody[model.WorkOrder](t, env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": elevator.ID, "title": "Pit inspection",
	}))
	rec := env.upload("/api/work-orders/"+wo.ID+"/attachments", admin, "photo", "bomb.png", huge, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")

	sig := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngWithDeclaredSize(t, 4000, 4000))
	_, err = (&server{}).storeSignature(context.Background(), sig)
	assert.ErrorContains(t, err, "too large")
}

func TestTrainingAttemptsScoreAgainstPassingMark(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")

	rec := env.do(http.MethodPost, "/api/training", admin, map[string]any{
		"title": "Rescue procedure", "content": "Steps", "passingScore": 80,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	module := decodeBody[model.TrainingModule](t, rec)

	failed := decodeBody[model.TrainingAttempt](t, env.do(http.MethodPost, "/api/training/"+module.ID+"/attempts", tech, map[string]int{"score": 79}))
	assert.False(t, failed.Passed)
	passed := decodeBody[model.TrainingAttempt](t, env.do(http.MethodPost, "/api/training/"+module.ID+"/attempts", tech, map[string]int{"score": 80}))
	assert.True(t, passed.Passed)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/training/"+module.ID+"/attempts", tech, map[string]int{"score": 101}).Code)
}

func TestNotificationsReadAll(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")
	_, elevator := env.fixture("Torre Norte", "ELV-001")
	for _, title := range []string{"One", "Two"} {
		env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
			"elevatorId": elevator.ID, "technicianId": tech.user.ID, "title": title,
		})
	}

	list := decodeBody[map[string]any](t, env.do(http.MethodGet, "/api/notifications?unread=1", tech, nil))
	assert.EqualValues(t, 2, list["total"])

	rec := env.do(http.MethodPost, "/api/notifications/read-all", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":2}`, rec.Body.String())

	list = decodeBody[map[string]any](t, env.do(http.MethodGet, "/api/notifications?unread=1", tech, nil))
	assert.EqualValues(t, 0, list["total"])
}

func TestDashboardsByRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.actor(model.RoleDeveloper, "")
	admin := env.actor(model.RoleAdmin, "")
	tech := env.actor(model.RoleTechnician, "")
	client, elevator := env.fixture("Torre Norte", "ELV-001")
	portal := env.actor(model.RoleClient, client.ID)

	env.do(http.MethodPost, "/api/work-orders", admin, map[string]any{
		"elevatorId": elevator.ID, "technicianId": tech.user.ID, "title": "Door sensor",
	})
	require.NoError(t, env.store.CreateEmergency(ctx, &model.EmergencyVisit{
		ElevatorID: elevator.ID, ClientID: client.ID, FailureType: "Noise", ReportedAt: model.Now(),
	}))

	adminView := decodeBody[struct {
		Role      model.Role     `json:"role"`
		Dashboard adminDashboard `json:"dashboard"`
	}](t, env.do(http.MethodGet, "/api/dashboard", admin, nil))
	assert.Equal(t, model.RoleAdmin, adminView.Role)
	assert.Len(t, adminView.Dashboard.ActiveEmergencies, 1)
	assert.Equal(t, 1, adminView.Dashboard.TotalElevators)
	assert.Equal(t, 1, adminView.Dashboard.ElevatorsByStatus[model.ElevatorOperational])
	assert.Nil(t, adminView.Dashboard.Host)
	assert.Empty(t, adminView.Dashboard.UsersByRole)

	devView := decodeBody[struct {
		Dashboard adminDashboard `json:"dashboard"`
	}](t, env.do(http.MethodGet, "/api/dashboard", dev, nil))
	require.NotNil(t, devView.Dashboard.Host)
	assert.Positive(t, devView.Dashboard.Host.Goroutines)
	assert.NotEmpty(t, devView.Dashboard.UsersByRole)

	techView := decodeBody[struct {
		Dashboard technicianDashboard `json:"dashboard"`
	}](t, env.do(http.MethodGet, "/api/dashboard", tech, nil))
	assert.Len(t, techView.Dashboard.OpenWorkOrders, 1)
	assert.Len(t, techView.Dashboard.ActiveEmergencies, 1)
	assert.Equal(t, 1, techView.Dashboard.UnreadNotifications)

	clientView := decodeBody[struct {
		Dashboard clientDashboard `json:"dashboard"`
	}](t, env.do(http.MethodGet, "/api/dashboard", portal, nil))
	assert.Len(t, clientView.Dashboard.Elevators, 1)
	assert.Len(t, clientView.Dashboard.OpenWorkOrders, 1)
	assert.Empty(t, clientView.Dashboard.AwaitingDecision)
}

func TestStatusFilterOnListsWithoutStatus(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(model.RoleAdmin, "")
	env.fixture("Grupo Alfa", "ELV-001")

	rec := env.do(http.MethodGet, "/api/clients?status=active", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	clients := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, clients["total"])

	rec = env.do(http.MethodGet, "/api/training?status=x", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/elevators?status=stopped", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	elevators := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 0, elevators["total"])
}

func TestHealthAndChecklists(t *testing.T) {
	env := newTestEnv(t)
	tech := env.actor(model.RoleTechnician, "")

	rec := env.do(http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = env.do(http.MethodGet, "/api/checklists", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.NotEmpty(t, body["default"])
	assert.NotEmpty(t, body["templates"])

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/nope", tech, nil).Code)
}
