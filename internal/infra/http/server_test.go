package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/config"
	"github.com/Archive-Origin/backend-sub002/internal/domain"
	"github.com/Archive-Origin/backend-sub002/internal/infra/attestation"
	"github.com/Archive-Origin/backend-sub002/internal/infra/cachemem"
	"github.com/Archive-Origin/backend-sub002/internal/infra/db"
	"github.com/Archive-Origin/backend-sub002/internal/infra/ledgermem"
	"github.com/Archive-Origin/backend-sub002/internal/infra/ratelimit"
	"github.com/Archive-Origin/backend-sub002/internal/infra/replayguard"
	"github.com/Archive-Origin/backend-sub002/internal/usecase"

	"github.com/gin-gonic/gin"
)

const (
	testAdminKey = "admin-secret"
	testAPIKey   = "client-key"
)

func digest(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

type testEnv struct {
	server *Server
	ledger *ledgermem.Ledger
	certs  *attestation.Store
	guard  *replayguard.MemoryGuard
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		HTTPAddr:    ":0",
		AdminAPIKey: testAdminKey,
		APIKeys:     []string{testAPIKey},
	}
	ledger := ledgermem.New()
	certs := attestation.NewStore(attestation.StoreConfig{})
	guard := replayguard.NewMemoryGuard(replayguard.MemoryGuardConfig{TTL: time.Minute})
	t.Cleanup(guard.Stop)

	verifyUC := &usecase.VerifyContent{
		Validator: usecase.ValidatorConfig{
			Media: usecase.MediaHeuristics{
				Enabled:           true,
				MaxFieldBytes:     512,
				MinPrintableRatio: 0.9,
			},
			ManifestSummaryMaxBytes: 2048,
		},
		Replay: guard,
		Limiter: ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
			Anonymous: ratelimit.ClassLimit{Capacity: 1000, RefillPerSec: 1000},
			APIKey:    ratelimit.ClassLimit{Capacity: 1000, RefillPerSec: 1000},
		}),
		Ledger:             ledger,
		Certs:              certs,
		LookupTimeout:      time.Second,
		FreshnessWindow:    10 * time.Minute,
		PendingProofMaxAge: 30 * 24 * time.Hour,
	}
	lookupUC := &usecase.LookupLedger{
		Ledger:   ledger,
		Cache:    cachemem.New(),
		CacheTTL: time.Minute,
	}
	server := NewServerWithDeps(cfg, ServerDeps{
		Verify:    verifyUC,
		Lookup:    lookupUC,
		Certs:     certs,
		Ingester:  certs,
		Refresher: certs,
		Writer:    ledger,
		Store:     &db.Store{},
	})
	return &testEnv{server: server, ledger: ledger, certs: certs, guard: guard}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Key": testAdminKey}
}

func apiHeaders() map[string]string {
	return map[string]string{"X-API-Key": testAPIKey}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no-db") {
		t.Fatalf("expected no-db mode, got %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
}

func TestVerifyEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	entry := appendEntry(t, env, "photo-1")
	certHash := digest("some-cert")

	body := map[string]any{
		"content_hash":          entry.ContentHash,
		"manifest_hash":         entry.ManifestHash,
		"signature_hash":        entry.SignatureHash,
		"attestation_cert_hash": certHash,
	}
	rec := env.do(t, http.MethodPost, "/v1/verify", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status %d: %s", rec.Code, rec.Body.String())
	}
	var resp verifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Cert was never ingested, so the pipeline stops at attestation.
	if resp.Status != string(domain.StatusNotVerified) || resp.Reason != string(domain.ReasonAttestationUnknown) {
		t.Fatalf("expected attestation_unknown, got %s/%s", resp.Status, resp.Reason)
	}
	if !resp.Details.LedgerMatch {
		t.Fatalf("ledger match must be reported")
	}
}

func TestVerifyInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVerifyUnknownAPIKeyRejected(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"content_hash":          digest("c"),
		"manifest_hash":         digest("m"),
		"signature_hash":        digest("s"),
		"attestation_cert_hash": digest("a"),
	}
	rec := env.do(t, http.MethodPost, "/v1/verify", body, map[string]string{"X-API-Key": "bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", rec.Code)
	}
}

func TestVerifyReplayThroughHTTP(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"content_hash":          digest("c"),
		"manifest_hash":         digest("m"),
		"signature_hash":        digest("s"),
		"attestation_cert_hash": digest("a"),
		"client_nonce":          "n-1",
	}
	first := env.do(t, http.MethodPost, "/v1/verify", body, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first verify status %d", first.Code)
	}
	second := env.do(t, http.MethodPost, "/v1/verify", body, nil)
	var resp verifyResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reason != string(domain.ReasonReplayed) {
		t.Fatalf("expected replayed, got %s", resp.Reason)
	}
}

func TestAdminEndpointsRequireKey(t *testing.T) {
	env := newTestEnv(t)
	paths := []string{
		"/v1/admin/certs/ingest",
		"/v1/admin/revocations/refresh",
		"/v1/admin/ledger/entries",
		"/v1/admin/ledger/root",
	}
	for _, path := range paths {
		rec := env.do(t, http.MethodPost, path, map[string]any{}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without admin key, got %d", path, rec.Code)
		}
		rec = env.do(t, http.MethodPost, path, map[string]any{}, map[string]string{"X-Admin-Key": "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 with wrong admin key, got %d", path, rec.Code)
		}
	}
}

func TestAdminAppendAndLookupRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	entry := appendEntry(t, env, "photo-2")

	if _, err := env.ledger.PublishRoot(context.Background()); err != nil {
		t.Fatalf("publish root: %v", err)
	}

	path := fmt.Sprintf("/v1/ledger/%s/%s/%s", entry.ContentHash, entry.ManifestHash, entry.SignatureHash)
	rec := env.do(t, http.MethodGet, path, nil, apiHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status %d: %s", rec.Code, rec.Body.String())
	}
	var resp entryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ProofLevel != string(domain.ProofLevelRooted) {
		t.Fatalf("expected rooted after publish, got %s", resp.ProofLevel)
	}
	if resp.MerkleRoot == "" {
		t.Fatalf("rooted entry must expose its merkle root")
	}
}

func TestLedgerLookupRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/v1/ledger/%s/%s/%s", digest("c"), digest("m"), digest("s"))
	rec := env.do(t, http.MethodGet, path, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLedgerLookupNotFound(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/v1/ledger/%s/%s/%s", digest("c"), digest("m"), digest("s"))
	rec := env.do(t, http.MethodGet, path, nil, apiHeaders())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLedgerLookupRejectsBadDigest(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/v1/ledger/not-a-digest/%s/%s", digest("m"), digest("s"))
	rec := env.do(t, http.MethodGet, path, nil, apiHeaders())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminAppendDuplicate(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"content_hash":   digest("content-dup"),
		"manifest_hash":  digest("manifest-dup"),
		"signature_hash": digest("signature-dup"),
	}
	if rec := env.do(t, http.MethodPost, "/v1/admin/ledger/entries", body, adminHeaders()); rec.Code != http.StatusCreated {
		t.Fatalf("first append status %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/v1/admin/ledger/entries", body, adminHeaders())
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate append must 409, got %d", rec.Code)
	}
}

func testCertPEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "capture-device-42"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestGetCertReturnsMetadataAndPEM(t *testing.T) {
	env := newTestEnv(t)

	ingest := env.do(t, http.MethodPost, "/v1/admin/certs/ingest",
		map[string]any{"certificate_pem": string(testCertPEM(t))}, adminHeaders())
	if ingest.Code != http.StatusOK {
		t.Fatalf("ingest status %d: %s", ingest.Code, ingest.Body.String())
	}
	var ingested struct {
		CertHash string `json:"cert_hash"`
	}
	if err := json.Unmarshal(ingest.Body.Bytes(), &ingested); err != nil {
		t.Fatalf("decode ingest response: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/v1/certs/"+ingested.CertHash, nil, apiHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("get cert status %d: %s", rec.Code, rec.Body.String())
	}
	var resp certResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode cert response: %v", err)
	}
	if resp.CertHash != ingested.CertHash {
		t.Fatalf("cert hash mismatch: %s vs %s", resp.CertHash, ingested.CertHash)
	}
	if resp.Status != string(domain.CertStatusActive) {
		t.Fatalf("expected active, got %s", resp.Status)
	}
	if !strings.Contains(resp.PEM, "BEGIN CERTIFICATE") {
		t.Fatalf("response must carry the certificate pem, got %q", resp.PEM)
	}
}

func TestGetCertNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/certs/"+digest("missing"), nil, apiHeaders())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func appendEntry(t *testing.T, env *testEnv, seed string) entryResponse {
	t.Helper()
	body := map[string]any{
		"content_hash":   digest("content-" + seed),
		"manifest_hash":  digest("manifest-" + seed),
		"signature_hash": digest("signature-" + seed),
	}
	rec := env.do(t, http.MethodPost, "/v1/admin/ledger/entries", body, adminHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status %d: %s", rec.Code, rec.Body.String())
	}
	var resp entryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode append response: %v", err)
	}
	return resp
}
