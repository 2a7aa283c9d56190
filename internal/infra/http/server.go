package http

import (
	"net/http"

	"github.com/Archive-Origin/backend-sub002/internal/config"
	"github.com/Archive-Origin/backend-sub002/internal/infra/db"
	"github.com/Archive-Origin/backend-sub002/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	verifyUC *usecase.VerifyContent
	lookupUC *usecase.LookupLedger

	certs     usecase.CertificateSource
	ingester  usecase.CertificateIngester
	refresher usecase.RevocationRefresher
	writer    usecase.LedgerWriter
	certSaver CertPersister

	revocationSources []string
	adminAPIKey       string
	apiKeys           map[string]struct{}

	metrics *Metrics
	logger  *zap.Logger
}

type ServerDeps struct {
	Verify    *usecase.VerifyContent
	Lookup    *usecase.LookupLedger
	Certs     usecase.CertificateSource
	Ingester  usecase.CertificateIngester
	Refresher usecase.RevocationRefresher
	Writer    usecase.LedgerWriter
	CertSaver CertPersister
	Store     *db.Store
	Metrics   *Metrics
	Logger    *zap.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:               cfg,
		store:             deps.Store,
		r:                 r,
		verifyUC:          deps.Verify,
		lookupUC:          deps.Lookup,
		certs:             deps.Certs,
		ingester:          deps.Ingester,
		refresher:         deps.Refresher,
		writer:            deps.Writer,
		certSaver:         deps.CertSaver,
		revocationSources: cfg.RevocationSources,
		adminAPIKey:       cfg.AdminAPIKey,
		apiKeys:           make(map[string]struct{}, len(cfg.APIKeys)),
		metrics:           deps.Metrics,
		logger:            deps.Logger,
	}
	for _, key := range cfg.APIKeys {
		s.apiKeys[key] = struct{}{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	r.Use(s.metrics.Middleware())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store.Available() {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})
	s.r.GET("/metrics", s.metrics.Handler())

	v1 := s.r.Group("/v1")
	{
		v1.POST("/verify", s.handleVerify)
		v1.GET("/ledger/:content_hash/:manifest_hash/:signature_hash", s.handleLedgerLookup)
		v1.GET("/certs/:cert_hash", s.handleGetCert)

		admin := v1.Group("/admin")
		{
			admin.POST("/certs/ingest", s.handleAdminIngestCert)
			admin.POST("/revocations/refresh", s.handleAdminRefreshRevocations)
			admin.POST("/ledger/entries", s.handleAdminAppendEntry)
			admin.POST("/ledger/root", s.handleAdminPublishRoot)
		}
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.r
}
