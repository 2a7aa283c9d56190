package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
	"github.com/Archive-Origin/backend-sub002/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CertPersister is the optional write-behind hook for certificate
// durability; nil when the daemon runs without postgres.
type CertPersister interface {
	Save(ctx context.Context, cert *domain.AttestationCertificate) error
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type verifyRequest struct {
	ContentHash         string            `json:"content_hash"`
	ManifestHash        string            `json:"manifest_hash"`
	SignatureHash       string            `json:"signature_hash"`
	AttestationCertHash string            `json:"attestation_cert_hash"`
	ManifestSummary     map[string]string `json:"manifest_summary,omitempty"`
	ClientNonce         string            `json:"client_nonce,omitempty"`
	ClientVersion       string            `json:"client_version,omitempty"`
}

type verifyResponse struct {
	Status     string         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	ProofLevel string         `json:"proof_level,omitempty"`
	Entry      *entryResponse `json:"entry,omitempty"`
	Details    detailsBody    `json:"details"`
	ExpiresAt  string         `json:"expires_at"`
}

type detailsBody struct {
	SignatureValid   bool     `json:"signature_valid"`
	AttestationValid bool     `json:"attestation_valid"`
	LedgerMatch      bool     `json:"ledger_match"`
	Notes            []string `json:"notes,omitempty"`
}

type entryResponse struct {
	EntryID       string   `json:"entry_id"`
	ContentHash   string   `json:"content_hash"`
	ManifestHash  string   `json:"manifest_hash"`
	SignatureHash string   `json:"signature_hash"`
	Timestamp     string   `json:"timestamp"`
	ProofLevel    string   `json:"proof_level"`
	MerkleRoot    string   `json:"merkle_root,omitempty"`
	LeafIndex     int64    `json:"leaf_index"`
	TreeSize      int64    `json:"tree_size,omitempty"`
	ProofPath     []string `json:"proof_path,omitempty"`
}

type certResponse struct {
	CertHash         string `json:"cert_hash"`
	Serial           string `json:"serial"`
	Issuer           string `json:"issuer"`
	Status           string `json:"status"`
	PEM              string `json:"pem"`
	RevocationReason string `json:"revocation_reason,omitempty"`
	RevokedAt        string `json:"revoked_at,omitempty"`
	IngestedAt       string `json:"ingested_at"`
}

type ingestCertRequest struct {
	CertificatePEM string `json:"certificate_pem,omitempty"`
	CertificateB64 string `json:"certificate_b64,omitempty"`
	Source         string `json:"source,omitempty"`
}

type refreshRequest struct {
	Sources []string `json:"sources,omitempty"`
}

type appendEntryRequest struct {
	ContentHash   string `json:"content_hash"`
	ManifestHash  string `json:"manifest_hash"`
	SignatureHash string `json:"signature_hash"`
}

func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	caller, ok := s.callerIdentity(c)
	if !ok {
		return
	}
	result := s.verifyUC.Execute(c.Request.Context(), usecase.RawVerificationRequest{
		ContentHash:         req.ContentHash,
		ManifestHash:        req.ManifestHash,
		SignatureHash:       req.SignatureHash,
		AttestationCertHash: req.AttestationCertHash,
		ManifestSummary:     req.ManifestSummary,
		ClientNonce:         req.ClientNonce,
		ClientVersion:       req.ClientVersion,
		Caller:              caller,
	})
	s.metrics.ObserveDecision(string(result.Status), string(result.Reason))
	c.JSON(http.StatusOK, renderResult(result))
}

// callerIdentity classifies the request. A presented key must be valid;
// requests without one are anonymous and bucketed by client IP.
func (s *Server) callerIdentity(c *gin.Context) (domain.CallerIdentity, bool) {
	key := strings.TrimSpace(c.GetHeader("X-API-Key"))
	if key == "" {
		return domain.CallerIdentity{Class: domain.IdentityAnonymous, Key: c.ClientIP()}, true
	}
	if _, ok := s.apiKeys[key]; !ok {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unknown api key")
		return domain.CallerIdentity{}, false
	}
	return domain.CallerIdentity{Class: domain.IdentityAPIKey, Key: key}, true
}

func (s *Server) requireAPIKey(c *gin.Context) bool {
	key := strings.TrimSpace(c.GetHeader("X-API-Key"))
	if key == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "api key required")
		return false
	}
	if _, ok := s.apiKeys[key]; !ok {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unknown api key")
		return false
	}
	return true
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin surface disabled")
		return false
	}
	key := strings.TrimSpace(c.GetHeader("X-Admin-Key"))
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	return true
}

func (s *Server) handleLedgerLookup(c *gin.Context) {
	if !s.requireAPIKey(c) {
		return
	}
	triple := domain.HashTriple{
		ContentHash:   domain.NormalizeHexDigest(c.Param("content_hash")),
		ManifestHash:  domain.NormalizeHexDigest(c.Param("manifest_hash")),
		SignatureHash: domain.NormalizeHexDigest(c.Param("signature_hash")),
	}
	if !domain.IsHexDigest(triple.ContentHash) ||
		!domain.IsHexDigest(triple.ManifestHash) ||
		!domain.IsHexDigest(triple.SignatureHash) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_DIGEST", "path segments must be sha-256 hex digests")
		return
	}
	entry, err := s.lookupUC.Execute(c.Request.Context(), triple)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderEntry(entry))
}

func (s *Server) handleGetCert(c *gin.Context) {
	if !s.requireAPIKey(c) {
		return
	}
	hash := domain.NormalizeHexDigest(c.Param("cert_hash"))
	if !domain.IsHexDigest(hash) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_DIGEST", "cert_hash must be a sha-256 hex digest")
		return
	}
	cert, err := s.certs.Get(c.Request.Context(), hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderCert(cert))
}

func (s *Server) handleAdminIngestCert(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req ingestCertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	var material []byte
	switch {
	case req.CertificatePEM != "":
		material = []byte(req.CertificatePEM)
	case req.CertificateB64 != "":
		decoded, err := base64.StdEncoding.DecodeString(req.CertificateB64)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_CERT", "certificate_b64 is not valid base64")
			return
		}
		material = decoded
	default:
		writeErrorCode(c, http.StatusBadRequest, "INVALID_CERT", "certificate_pem or certificate_b64 required")
		return
	}
	source := req.Source
	if source == "" {
		source = "admin-api"
	}
	certHash, added, err := s.ingester.IngestCert(c.Request.Context(), material, source)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_CERT", err.Error())
		return
	}
	s.persistCert(c.Request.Context(), certHash)
	c.JSON(http.StatusOK, gin.H{"cert_hash": certHash, "added": added})
}

func (s *Server) persistCert(ctx context.Context, certHash string) {
	if s.certSaver == nil {
		return
	}
	cert, err := s.certs.Get(ctx, certHash)
	if err != nil {
		return
	}
	if err := s.certSaver.Save(ctx, cert); err != nil {
		s.logger.Warn("certificate persistence failed",
			zap.String("cert_hash", certHash), zap.Error(err))
	}
}

func (s *Server) handleAdminRefreshRevocations(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return
		}
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = s.revocationSources
	}
	outcome, err := s.refresher.RefreshRevocations(c.Request.Context(), sources)
	if err != nil {
		s.metrics.ObserveRefresh(true)
		writeErrorCode(c, http.StatusBadGateway, "REFRESH_FAILED", err.Error())
		return
	}
	s.metrics.ObserveRefresh(len(outcome.Failures) > 0)
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleAdminAppendEntry(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req appendEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	triple := domain.HashTriple{
		ContentHash:   domain.NormalizeHexDigest(req.ContentHash),
		ManifestHash:  domain.NormalizeHexDigest(req.ManifestHash),
		SignatureHash: domain.NormalizeHexDigest(req.SignatureHash),
	}
	if !domain.IsHexDigest(triple.ContentHash) ||
		!domain.IsHexDigest(triple.ManifestHash) ||
		!domain.IsHexDigest(triple.SignatureHash) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_DIGEST", "all hashes must be sha-256 hex digests")
		return
	}
	entry, err := s.writer.Append(c.Request.Context(), triple)
	if err != nil {
		writeError(c, err)
		return
	}
	s.metrics.ObserveLedgerAppend()
	c.JSON(http.StatusCreated, renderEntry(entry))
}

func (s *Server) handleAdminPublishRoot(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	root, err := s.writer.PublishRoot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"merkle_root": hex.EncodeToString(root)})
}

func renderResult(result *domain.VerificationResult) verifyResponse {
	resp := verifyResponse{
		Status:     string(result.Status),
		Reason:     string(result.Reason),
		ProofLevel: string(result.ProofLevel),
		Details: detailsBody{
			SignatureValid:   result.Details.SignatureValid,
			AttestationValid: result.Details.AttestationValid,
			LedgerMatch:      result.Details.LedgerMatch,
			Notes:            result.Details.Notes,
		},
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if result.Entry != nil {
		entry := renderEntry(result.Entry)
		resp.Entry = &entry
	}
	return resp
}

func renderEntry(entry *domain.LedgerEntry) entryResponse {
	resp := entryResponse{
		EntryID:       entry.EntryID,
		ContentHash:   entry.ContentHash,
		ManifestHash:  entry.ManifestHash,
		SignatureHash: entry.SignatureHash,
		Timestamp:     entry.Timestamp.UTC().Format(time.RFC3339),
		ProofLevel:    string(entry.ProofLevel),
		LeafIndex:     entry.LeafIndex,
		TreeSize:      entry.TreeSize,
	}
	if len(entry.MerkleRoot) > 0 {
		resp.MerkleRoot = hex.EncodeToString(entry.MerkleRoot)
	}
	for _, node := range entry.ProofPath {
		resp.ProofPath = append(resp.ProofPath, hex.EncodeToString(node))
	}
	return resp
}

func renderCert(cert *domain.AttestationCertificate) certResponse {
	resp := certResponse{
		CertHash:         cert.CertHash,
		Serial:           cert.Serial,
		Issuer:           cert.Issuer,
		Status:           string(cert.Status),
		PEM:              string(cert.PEM),
		RevocationReason: cert.RevocationReason,
		IngestedAt:       cert.IngestedAt.UTC().Format(time.RFC3339),
	}
	if cert.RevokedAt != nil {
		resp.RevokedAt = cert.RevokedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrDuplicateEntry):
		status, code = http.StatusConflict, "DUPLICATE_ENTRY"
	case errors.Is(err, domain.ErrLedgerNotFound):
		status, code = http.StatusNotFound, "LEDGER_NOT_FOUND"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
