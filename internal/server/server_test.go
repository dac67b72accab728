package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/agentdesk/internal/artifact"
	auditdomain "github.com/smallbiznis/agentdesk/internal/audit/domain"
	auditrepository "github.com/smallbiznis/agentdesk/internal/audit/repository"
	auditservice "github.com/smallbiznis/agentdesk/internal/audit/service"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	feeservice "github.com/smallbiznis/agentdesk/internal/fee/service"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/agentdesk/internal/ledger/service"
	"github.com/smallbiznis/agentdesk/internal/observability"
	"github.com/smallbiznis/agentdesk/internal/receipt"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	servicerequestrepository "github.com/smallbiznis/agentdesk/internal/servicerequest/repository"
	servicerequestservice "github.com/smallbiznis/agentdesk/internal/servicerequest/service"
	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	walletrepository "github.com/smallbiznis/agentdesk/internal/wallet/repository"
	walletservice "github.com/smallbiznis/agentdesk/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testAgent = "agent-1"
	testAdmin = "admin-1"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&servicerequestdomain.ServiceRequest{},
		&servicerequestdomain.Artifact{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
		&auditdomain.AuditLog{},
		&authorization.ActorRole{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide()})
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: clk})
	wallet := walletservice.NewService(walletservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:      walletrepository.Provide(),
		LedgerSvc: ledger,
		AuditSvc:  audit,
	})
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{DB: db, Log: log, Enforcer: enforcer, AuditSvc: audit})
	require.NoError(t, authz.AssignRole(context.Background(), testAdmin, authorization.RoleAdmin, authorization.SystemActor))

	fees := feeservice.NewService(feeservice.Params{Log: log, Source: feedomain.StaticSource(feedomain.DefaultSchedule())})
	requests := servicerequestservice.NewService(servicerequestservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:      servicerequestrepository.Provide(),
		FeeSvc:    fees,
		WalletSvc: wallet,
		LedgerSvc: ledger,
		AuthzSvc:  authz,
		AuditSvc:  audit,
	})

	engine := NewEngine(observability.Config{}, nil)
	srv := NewServer(ServerParams{
		Gin:         engine,
		Log:         log,
		Clock:       clk,
		AuthzSvc:    authz,
		AuditSvc:    audit,
		FeeSvc:      fees,
		WalletSvc:   wallet,
		LedgerSvc:   ledger,
		RequestSvc:  requests,
		ArtifactSvc: artifact.NewService(artifact.Params{Config: config.Config{}, Log: log, Clock: clk}),
		Receipts:    receipt.New(),
	})
	srv.RegisterAPIRoutes()
	srv.RegisterAdminRoutes()
	return engine
}

func doJSON(t *testing.T, r http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(HeaderActorID, actor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	r := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/api/requests", "", map[string]any{"service_code": "NIN_MOD_DOB"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	create := map[string]any{
		"service_code": "NIN_MOD_DOB",
		"form_data":    map[string]any{"nin": "12345678901"},
		"inputs":       map[string]string{"oldDate": "2000-01-01", "newDate": "2001-06-01"},
	}
	w = doJSON(t, r, http.MethodPost, "/api/requests", testAgent, create)
	require.Equal(t, http.StatusPaymentRequired, w.Code, w.Body.String())
	assert.Equal(t, "insufficient_funds", decodeError(t, w).Type)

	w = doJSON(t, r, http.MethodPost, "/admin/wallets/"+testAgent+"/fund", testAgent, map[string]any{"amount": 50000, "reference": "cash"})
	require.Equal(t, http.StatusForbidden, w.Code)
	w = doJSON(t, r, http.MethodPost, "/admin/wallets/"+testAgent+"/fund", testAdmin, map[string]any{"amount": 50000, "reference": "cash"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/api/requests", testAgent, create)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data servicerequestdomain.ServiceRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.Data.ID.String()
	assert.Equal(t, int64(15000), created.Data.ComputedFee)

	w = doJSON(t, r, http.MethodPost, "/admin/requests/"+id+"/complete", testAgent, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeError(t, w).Type)

	w = doJSON(t, r, http.MethodPost, "/admin/requests/"+id+"/fail", testAdmin, map[string]any{"should_refund": true})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "note_required", decodeError(t, w).Errors[0].Code)

	w = doJSON(t, r, http.MethodPost, "/admin/requests/"+id+"/complete", testAdmin, map[string]any{"result_url": "https://cdn.example.com/slip.pdf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/admin/requests/"+id+"/fail", testAdmin, map[string]any{"should_refund": true, "note": "late"})
	require.Equal(t, http.StatusConflict, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, "invalid_transition", payload.Type)
	assert.Equal(t, "COMPLETED", payload.CurrentStatus)

	w = doJSON(t, r, http.MethodGet, "/api/wallet", testAgent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wallet struct {
		Data walletdomain.Wallet `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, int64(35000), wallet.Data.Balance)

	w = doJSON(t, r, http.MethodGet, "/api/requests/"+id, "agent-2", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/requests/"+id+"/receipt", testAgent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestAdminActionsAcceptEmptyChunkedBody(t *testing.T) {
	r := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/admin/wallets/"+testAgent+"/fund", testAdmin, map[string]any{"amount": 20000, "reference": "cash"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/api/requests", testAgent, map[string]any{
		"service_code": "NIN_MOD_DOB",
		"form_data":    map[string]any{"result_url": "https://evil.example.com/fake-cert.pdf"},
		"inputs":       map[string]string{"oldDate": "2000-01-01", "newDate": "2001-06-01"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "invalid_form_data", decodeError(t, w).Errors[0].Code)

	w = doJSON(t, r, http.MethodPost, "/api/requests", testAgent, map[string]any{
		"service_code": "NIN_MOD_DOB",
		"inputs":       map[string]string{"oldDate": "2000-01-01", "newDate": "2001-06-01"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data servicerequestdomain.ServiceRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.Data.ID.String()

	for _, action := range []string{"processing", "complete"} {
		req := httptest.NewRequest(http.MethodPost, "/admin/requests/"+id+"/"+action, bytes.NewReader(nil))
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderActorID, testAdmin)
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", action, w.Body.String())
	}

	var done struct {
		Data servicerequestdomain.ServiceRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.Equal(t, servicerequestdomain.StatusCompleted, done.Data.Status)
}

func TestQuoteEndpoint(t *testing.T) {
	r := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/api/quotes", "", map[string]any{
		"service_code": "BVN_MOD_DOB",
		"inputs":       map[string]string{"oldDate": "1990-01-01", "newDate": "2000-01-01", "institution": "Opay"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var quote struct {
		Data quoteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, int64(9000), quote.Data.Total)

	w = doJSON(t, r, http.MethodPost, "/api/quotes", "", map[string]any{
		"service_code": "BVN_MOD_DOB",
		"inputs":       map[string]string{"oldDate": "1990-01-01", "newDate": "2000-01-01", "institution": "FCMB"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "policy_violation", decodeError(t, w).Type)

	w = doJSON(t, r, http.MethodPost, "/api/quotes", "", map[string]any{"service_code": "UNKNOWN"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "configuration_error", decodeError(t, w).Type)
}

func TestUploadWithoutStorageIsUnavailable(t *testing.T) {
	r := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/api/uploads", testAgent, map[string]any{
		"purpose": "result", "file_name": "slip.pdf", "content_type": "application/pdf",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/uploads", testAgent, map[string]any{
		"file_name": "passport.jpg", "content_type": "image/jpeg",
	})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"transition", &servicerequestdomain.TransitionError{Current: servicerequestdomain.StatusFailed, Action: servicerequestdomain.ActionComplete}, http.StatusConflict, "invalid_transition"},
		{"policy", &feedomain.PolicyError{Institution: "FCMB"}, http.StatusUnprocessableEntity, "policy_violation"},
		{"funds", fmt.Errorf("debit: %w", walletdomain.ErrInsufficientFunds), http.StatusPaymentRequired, "insufficient_funds"},
		{"refund", fmt.Errorf("%w: %w", servicerequestdomain.ErrRefundFailed, walletdomain.ErrInvalidAmount), http.StatusBadGateway, "refund_failed"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"actor", authorization.ErrInvalidActor, http.StatusUnauthorized, "unauthorized"},
		{"configuration", feedomain.ErrConfiguration, http.StatusInternalServerError, "configuration_error"},
		{"not found", servicerequestdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"deduction", fmt.Errorf("%w: too large", servicerequestdomain.ErrInvalidDeduction), http.StatusBadRequest, "validation_error"},
		{"form data", fmt.Errorf("%w: result_url", servicerequestdomain.ErrInvalidFormData), http.StatusBadRequest, "validation_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.kind, payload.Type)
		})
	}
}
