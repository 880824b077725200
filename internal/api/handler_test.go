package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/labworks/lis/internal/core"
	"github.com/labworks/lis/internal/platform/auth"
	"github.com/labworks/lis/internal/resources"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	engine := core.NewEngine(core.NewMemStore(), resources.Registry())
	e := echo.New()
	NewHandler(engine, nil).RegisterRoutes(e, auth.DevAuth())
	return e
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestHandler_CreateAndRead(t *testing.T) {
	e := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/fhir/Patient",
		`{"resourceType":"Patient","name":[{"family":"Smith"}],"gender":"female"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("ETag") != `W/"1"` {
		t.Errorf("ETag = %q", rec.Header().Get("ETag"))
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/fhir/Patient/") {
		t.Fatalf("Location = %q", loc)
	}

	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created resource carries no id")
	}
	meta, _ := created["meta"].(map[string]interface{})
	if meta == nil || meta["versionId"] != "1" {
		t.Errorf("meta = %v", created["meta"])
	}

	rec = doRequest(e, http.MethodGet, "/fhir/Patient/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d", rec.Code)
	}
	got := decodeBody(t, rec)
	if got["id"] != id || got["gender"] != "female" {
		t.Errorf("read body = %v", got)
	}
}

func TestHandler_ReadMissing(t *testing.T) {
	e := newTestServer(t)
	rec := doRequest(e, http.MethodGet, "/fhir/Patient/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["resourceType"] != "OperationOutcome" {
		t.Errorf("error body = %v", body)
	}
}

func TestHandler_UpdateBumpsVersion(t *testing.T) {
	e := newTestServer(t)
	rec := doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPut, "/fhir/Patient/P1",
		`{"resourceType":"Patient","gender":"male"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("ETag") != `W/"2"` {
		t.Errorf("ETag after update = %q", rec.Header().Get("ETag"))
	}
}

func TestHandler_DeleteThenGone(t *testing.T) {
	e := newTestServer(t)
	doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P1"}`)

	rec := doRequest(e, http.MethodDelete, "/fhir/Patient/P1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/fhir/Patient/P1", "")
	if rec.Code != http.StatusGone {
		t.Fatalf("read after delete status = %d, want 410", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["resourceType"] != "OperationOutcome" {
		t.Errorf("gone body = %v", body)
	}

	rec = doRequest(e, http.MethodDelete, "/fhir/Patient/P1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestHandler_DeletedAuditRead(t *testing.T) {
	// DevAuth grants admin, so _deleted=true exposes the audit copy.
	e := newTestServer(t)
	doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P1","gender":"female"}`)
	doRequest(e, http.MethodDelete, "/fhir/Patient/P1", "")

	rec := doRequest(e, http.MethodGet, "/fhir/Patient/P1?_deleted=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin audit read status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["id"] != "P1" {
		t.Errorf("audit body = %v", body)
	}
	meta, _ := body["meta"].(map[string]interface{})
	if meta == nil || meta["versionId"] != "2" {
		t.Errorf("audit meta = %v", body["meta"])
	}

	// Without the flag the read stays 410.
	rec = doRequest(e, http.MethodGet, "/fhir/Patient/P1", "")
	if rec.Code != http.StatusGone {
		t.Errorf("plain read status = %d, want 410", rec.Code)
	}
}

func TestHandler_DeletedAuditReadRequiresAdmin(t *testing.T) {
	engine := core.NewEngine(core.NewMemStore(), resources.Registry())
	admin := echo.New()
	NewHandler(engine, nil).RegisterRoutes(admin, auth.DevAuth())
	doRequest(admin, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P1"}`)
	doRequest(admin, http.MethodDelete, "/fhir/Patient/P1", "")

	// Same store behind a physician identity: the flag is ignored.
	physician := echo.New()
	authn := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", "phys-1")
			c.Set("user_roles", []string{"physician"})
			return next(c)
		}
	}
	NewHandler(engine, nil).RegisterRoutes(physician, authn)

	rec := doRequest(physician, http.MethodGet, "/fhir/Patient/P1?_deleted=true", "")
	if rec.Code != http.StatusGone {
		t.Errorf("non-admin audit read status = %d, want 410", rec.Code)
	}
}

func TestHandler_CreateDuplicateID(t *testing.T) {
	e := newTestServer(t)
	rec := doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate create status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["resourceType"] != "OperationOutcome" {
		t.Errorf("error body = %v", body)
	}
}

func TestHandler_DanglingReference(t *testing.T) {
	e := newTestServer(t)
	rec := doRequest(e, http.MethodPost, "/fhir/Observation",
		`{"resourceType":"Observation","status":"final","code":{"coding":[{"code":"718-7"}]},"subject":{"reference":"Patient/missing"}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_SearchBundle(t *testing.T) {
	e := newTestServer(t)
	doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P1","name":[{"family":"Smith"}]}`)
	doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P2","name":[{"family":"Jones"}]}`)

	rec := doRequest(e, http.MethodGet, "/fhir/Patient?family=Smith", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["resourceType"] != "Bundle" || body["type"] != "searchset" {
		t.Errorf("bundle envelope = %v", body)
	}
	if body["total"] != float64(1) {
		t.Errorf("total = %v", body["total"])
	}
}

func TestHandler_SearchPost(t *testing.T) {
	e := newTestServer(t)
	doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient","id":"P1","gender":"female"}`)

	req := httptest.NewRequest(http.MethodPost, "/fhir/Patient/_search", strings.NewReader("gender=female"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["total"] != float64(1) {
		t.Errorf("total = %v", body["total"])
	}
}

func TestHandler_SearchInvalidCount(t *testing.T) {
	e := newTestServer(t)
	rec := doRequest(e, http.MethodGet, "/fhir/Patient?_count=500", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["resourceType"] != "OperationOutcome" {
		t.Errorf("error body = %v", body)
	}
}

func TestHandler_Metadata(t *testing.T) {
	e := newTestServer(t)
	rec := doRequest(e, http.MethodGet, "/fhir/metadata", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["resourceType"] != "CapabilityStatement" {
		t.Errorf("body = %v", body)
	}
}

func TestHandler_Health(t *testing.T) {
	e := newTestServer(t)
	rec := doRequest(e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandler_RoleEnforcement(t *testing.T) {
	engine := core.NewEngine(core.NewMemStore(), resources.Registry())
	e := echo.New()
	// Authenticated but with a role that can read, not write.
	nurse := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", "nurse-1")
			c.Set("user_roles", []string{"nurse"})
			return next(c)
		}
	}
	NewHandler(engine, nil).RegisterRoutes(e, nurse)

	rec := doRequest(e, http.MethodPost, "/fhir/Patient", `{"resourceType":"Patient"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("nurse write status = %d, want 403", rec.Code)
	}
	rec = doRequest(e, http.MethodGet, "/fhir/Patient", "")
	if rec.Code != http.StatusOK {
		t.Errorf("nurse read status = %d, want 200", rec.Code)
	}
}
