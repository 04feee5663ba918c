// Package apiapp serves the JSON API of the maintenance suite: session auth, role scoped CRUD,
// dashboards, analytics, PDF reports, exports and the realtime channel.
package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/blobstore"
	"github.com/liftcare/liftsuite/internal/metrics"
	"github.com/liftcare/liftsuite/internal/middleware"
	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/qrcode"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/report"
	"github.com/liftcare/liftsuite/internal/scheduler"
	"github.com/liftcare/liftsuite/internal/security"
	"github.com/liftcare/liftsuite/internal/store"
)

const (
	sessionCookieName = "liftsuite_session"
	csrfHeaderName    = "X-CSRF-Token"
)

type server struct {
	store         *store.Store
	blobs         blobstore.Store
	hub           *realtime.Hub
	signer        *qrcode.Signer
	renderer      report.Renderer
	checklists    report.ChecklistTemplates
	metrics       *metrics.Metrics
	logger        *zap.Logger
	validate      *validator.Validate
	sessionTTL    time.Duration
	publicBaseURL string
	loginLimiter  *middleware.RateLimiter
	publicLimiter *middleware.RateLimiter
	started       time.Time
	now           func() time.Time
}

// Deps are the collaborators of the API handler. Store, Blobs, Hub and Signer are required.
type Deps struct {
	Store           *store.Store
	Blobs           blobstore.Store
	Hub             *realtime.Hub
	Signer          *qrcode.Signer
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
	SessionTTL      time.Duration
	PublicBaseURL   string
	CompanyName     string
	LoginRatePerMin float64
	// TrustedProxies may set X-Forwarded-For for the rate limited routes.
	TrustedProxies []*net.IPNet
	LoginLimiter   *middleware.RateLimiter
	PublicLimiter  *middleware.RateLimiter
	Now            func() time.Time
}

// NewHandler builds the routed API handler with its middleware stack.
func NewHandler(d Deps) (http.Handler, error) {
	if d.Store == nil || d.Blobs == nil || d.Hub == nil || d.Signer == nil {
		return nil, errors.New("store, blobs, hub and signer are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 12 * time.Hour
	}
	if d.LoginRatePerMin <= 0 {
		d.LoginRatePerMin = 10
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = middleware.NewRateLimiter(d.LoginRatePerMin, 5, d.Logger)
	}
	if d.PublicLimiter == nil {
		d.PublicLimiter = middleware.NewRateLimiter(60, 20, d.Logger)
	}
	if len(d.TrustedProxies) > 0 {
		keyFunc := middleware.ForwardedClientIP(d.TrustedProxies)
		d.LoginLimiter.KeyFunc = keyFunc
		d.PublicLimiter.KeyFunc = keyFunc
	}
	checklists, err := report.LoadChecklistTemplates()
	if err != nil {
		return nil, fmt.Errorf("load checklist templates: %w", err)
	}

	s := &server{
		store:         d.Store,
		blobs:         d.Blobs,
		hub:           d.Hub,
		signer:        d.Signer,
		renderer:      report.Renderer{Company: d.CompanyName, Now: d.Now},
		checklists:    checklists,
		metrics:       d.Metrics,
		logger:        d.Logger.Named("api"),
		validate:      newValidator(),
		sessionTTL:    d.SessionTTL,
		publicBaseURL: strings.TrimRight(d.PublicBaseURL, "/"),
		loginLimiter:  d.LoginLimiter,
		publicLimiter: d.PublicLimiter,
		started:       d.Now(),
		now:           d.Now,
	}

	csp := strings.Join([]string{
		"default-src 'none'",
		"img-src 'self' data:",
		"connect-src 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	return middleware.Chain(
		s.routes(),
		middleware.Recover(s.logger),
		middleware.RequestID,
		middleware.RequestLog(s.logger),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	), nil
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(s.metrics))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	staff := []model.Role{model.RoleDeveloper, model.RoleAdmin}
	field := []model.Role{model.RoleDeveloper, model.RoleAdmin, model.RoleTechnician}
	portal := []model.Role{model.RoleDeveloper, model.RoleAdmin, model.RoleClient}

	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.health).Methods(http.MethodGet)

	r.Handle("/api/auth/login", s.loginLimiter.Handler(http.HandlerFunc(s.login))).Methods(http.MethodPost)
	r.Handle("/api/auth/me", s.authed(s.me)).Methods(http.MethodGet)
	r.Handle("/api/auth/csrf", s.authed(s.csrfToken)).Methods(http.MethodGet)
	r.Handle("/api/auth/logout", s.authed(s.logout)).Methods(http.MethodPost)

	r.Handle("/api/public/qr/{token}", s.publicLimiter.Handler(http.HandlerFunc(s.publicQRLookup))).Methods(http.MethodGet)

	r.Handle("/api/users", s.authed(s.listUsers, staff...)).Methods(http.MethodGet)
	r.Handle("/api/users", s.authed(s.createUser, staff...)).Methods(http.MethodPost)
	r.Handle("/api/users/{id}", s.authed(s.getUser, staff...)).Methods(http.MethodGet)
	r.Handle("/api/users/{id}", s.authed(s.updateUser, staff...)).Methods(http.MethodPut)
	r.Handle("/api/users/{id}", s.authed(s.deactivateUser, staff...)).Methods(http.MethodDelete)

	r.Handle("/api/clients", s.authed(s.listClients)).Methods(http.MethodGet)
	r.Handle("/api/clients", s.authed(s.createClient, staff...)).Methods(http.MethodPost)
	r.Handle("/api/clients/import", s.authed(s.importClients, staff...)).Methods(http.MethodPost)
	r.Handle("/api/clients/{id}", s.authed(s.getClient)).Methods(http.MethodGet)
	r.Handle("/api/clients/{id}", s.authed(s.updateClient, staff...)).Methods(http.MethodPut)
	r.Handle("/api/clients/{id}", s.authed(s.deleteClient, staff...)).Methods(http.MethodDelete)

	r.Handle("/api/elevators", s.authed(s.listElevators)).Methods(http.MethodGet)
	r.Handle("/api/elevators", s.authed(s.createElevator, staff...)).Methods(http.MethodPost)
	r.Handle("/api/elevators/import", s.authed(s.importElevators, staff...)).Methods(http.MethodPost)
	r.Handle("/api/elevators/{id}", s.authed(s.getElevator)).Methods(http.MethodGet)
	r.Handle("/api/elevators/{id}", s.authed(s.updateElevator, staff...)).Methods(http.MethodPut)
	r.Handle("/api/elevators/{id}", s.authed(s.deleteElevator, staff...)).Methods(http.MethodDelete)
	r.Handle("/api/elevators/{id}/qr", s.authed(s.rotateQRCode, staff...)).Methods(http.MethodPost)
	r.Handle("/api/elevators/{id}/qr.png", s.authed(s.qrCodePNG, staff...)).Methods(http.MethodGet)

	r.Handle("/api/work-orders", s.authed(s.listWorkOrders)).Methods(http.MethodGet)
	r.Handle("/api/work-orders", s.authed(s.createWorkOrder, staff...)).Methods(http.MethodPost)
	r.Handle("/api/work-orders/{id}", s.authed(s.getWorkOrder)).Methods(http.MethodGet)
	r.Handle("/api/work-orders/{id}", s.authed(s.updateWorkOrder, staff...)).Methods(http.MethodPut)
	r.Handle("/api/work-orders/{id}", s.authed(s.deleteWorkOrder, staff...)).Methods(http.MethodDelete)
	r.Handle("/api/work-orders/{id}/status", s.authed(s.workOrderStatus, field...)).Methods(http.MethodPost)
	r.Handle("/api/work-orders/{id}/pdf", s.authed(s.workOrderPDF)).Methods(http.MethodGet)

	r.Handle("/api/maintenance", s.authed(s.listMaintenance)).Methods(http.MethodGet)
	r.Handle("/api/maintenance", s.authed(s.createMaintenance, staff...)).Methods(http.MethodPost)
	r.Handle("/api/maintenance/{id}", s.authed(s.getMaintenance)).Methods(http.MethodGet)
	r.Handle("/api/maintenance/{id}", s.authed(s.updateMaintenance, staff...)).Methods(http.MethodPut)
	r.Handle("/api/maintenance/{id}", s.authed(s.deleteMaintenance, staff...)).Methods(http.MethodDelete)
	r.Handle("/api/maintenance/{id}/status", s.authed(s.maintenanceStatus, field...)).Methods(http.MethodPost)
	r.Handle("/api/maintenance/{id}/complete", s.authed(s.completeMaintenance, field...)).Methods(http.MethodPost)
	r.Handle("/api/maintenance/{id}/pdf", s.authed(s.maintenancePDF)).Methods(http.MethodGet)

	r.Handle("/api/emergencies", s.authed(s.listEmergencies)).Methods(http.MethodGet)
	r.Handle("/api/emergencies", s.authed(s.createEmergency, portal...)).Methods(http.MethodPost)
	r.Handle("/api/emergencies/{id}", s.authed(s.getEmergency)).Methods(http.MethodGet)
	r.Handle("/api/emergencies/{id}", s.authed(s.updateEmergency, staff...)).Methods(http.MethodPut)
	r.Handle("/api/emergencies/{id}", s.authed(s.deleteEmergency, staff...)).Methods(http.MethodDelete)
	r.Handle("/api/emergencies/{id}/status", s.authed(s.emergencyStatus, field...)).Methods(http.MethodPost)
	r.Handle("/api/emergencies/{id}/pdf", s.authed(s.emergencyPDF)).Methods(http.MethodGet)

	r.Handle("/api/quotations", s.authed(s.listQuotations, portal...)).Methods(http.MethodGet)
	r.Handle("/api/quotations", s.authed(s.createQuotation, staff...)).Methods(http.MethodPost)
	r.Handle("/api/quotations/{id}", s.authed(s.getQuotation, portal...)).Methods(http.MethodGet)
	r.Handle("/api/quotations/{id}", s.authed(s.updateQuotation, staff...)).Methods(http.MethodPut)
	r.Handle("/api/quotations/{id}", s.authed(s.deleteQuotation, staff...)).Methods(http.MethodDelete)
	r.Handle("/api/quotations/{id}/decision", s.authed(s.decideQuotation, portal...)).Methods(http.MethodPost)
	r.Handle("/api/quotations/{id}/pdf", s.authed(s.quotationPDF, portal...)).Methods(http.MethodGet)

	owners := "{owner:work-orders|maintenance|emergencies}"
	r.Handle("/api/"+owners+"/{id}/attachments", s.authed(s.listAttachments)).Methods(http.MethodGet)
	r.Handle("/api/"+owners+"/{id}/attachments", s.authed(s.uploadPhoto, field...)).Methods(http.MethodPost)
	r.Handle("/api/attachments/{id}", s.authed(s.downloadAttachment)).Methods(http.MethodGet)
	r.Handle("/api/attachments/{id}", s.authed(s.deleteAttachment, field...)).Methods(http.MethodDelete)

	r.Handle("/api/documents", s.authed(s.listDocuments, portal...)).Methods(http.MethodGet)
	r.Handle("/api/documents", s.authed(s.uploadDocument, staff...)).Methods(http.MethodPost)
	r.Handle("/api/documents/{id}", s.authed(s.getDocument, portal...)).Methods(http.MethodGet)
	r.Handle("/api/documents/{id}", s.authed(s.updateDocument, staff...)).Methods(http.MethodPut)
	r.Handle("/api/documents/{id}", s.authed(s.deleteDocument, staff...)).Methods(http.MethodDelete)
	r.Handle("/api/documents/{id}/file", s.authed(s.downloadDocument, portal...)).Methods(http.MethodGet)

	r.Handle("/api/training", s.authed(s.listTrainingModules)).Methods(http.MethodGet)
	r.Handle("/api/training", s.authed(s.createTrainingModule, staff...)).Methods(http.MethodPost)
	r.Handle("/api/training/{id}", s.authed(s.getTrainingModule)).Methods(http.MethodGet)
	r.Handle("/api/training/{id}", s.authed(s.updateTrainingModule, staff...)).Methods(http.MethodPut)
	r.Handle("/api/training/{id}", s.authed(s.deleteTrainingModule, staff...)).Methods(http.MethodDelete)
	r.Handle("/api/training/{id}/attempts", s.authed(s.listTrainingAttempts)).Methods(http.MethodGet)
	r.Handle("/api/training/{id}/attempts", s.authed(s.recordTrainingAttempt)).Methods(http.MethodPost)

	r.Handle("/api/notifications", s.authed(s.listNotifications)).Methods(http.MethodGet)
	r.Handle("/api/notifications/read-all", s.authed(s.readAllNotifications)).Methods(http.MethodPost)
	r.Handle("/api/notifications/{id}/read", s.authed(s.readNotification)).Methods(http.MethodPost)
	r.Handle("/api/notifications/{id}", s.authed(s.deleteNotification)).Methods(http.MethodDelete)

	r.Handle("/api/dashboard", s.authed(s.dashboard)).Methods(http.MethodGet)
	r.Handle("/api/analytics", s.authed(s.analytics, staff...)).Methods(http.MethodGet)
	r.Handle("/api/exports/{resource:[a-z-]+}.{format:csv|xlsx}", s.authed(s.export)).Methods(http.MethodGet)
	r.Handle("/api/checklists", s.authed(s.listChecklists)).Methods(http.MethodGet)
	r.Handle("/api/realtime", s.authed(s.realtime)).Methods(http.MethodGet)
	return r
}

// authed wraps h with session auth, CSRF checks and, when roles are given, a role gate.
func (s *server) authed(h http.HandlerFunc, roles ...model.Role) http.Handler {
	chain := []func(http.Handler) http.Handler{s.requireAuth, s.csrfProtect}
	if len(roles) > 0 {
		chain = append(chain, only(roles...))
	}
	return middleware.Chain(h, chain...)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"uptimeSec": int64(s.now().Sub(s.started).Seconds()),
	})
}

// Run starts the API and blocks until ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.InitSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	hash, err := security.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := st.EnsureDeveloper(ctx, cfg.AdminEmail, "Developer", hash); err != nil {
		return fmt.Errorf("ensure developer account: %w", err)
	}

	blobs, err := openBlobStore(cfg)
	if err != nil {
		return err
	}

	var broker realtime.Broker = realtime.NewMemoryBroker()
	if cfg.RedisURL != "" {
		broker, err = realtime.NewRedisBroker(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
	}
	defer broker.Close()
	hub := realtime.NewHub(broker, logger.Named("realtime"))

	signingKey := cfg.QRSigningKey
	if signingKey == "" {
		signingKey, err = security.RandomToken(32)
		if err != nil {
			return err
		}
		logger.Warn("QR_SIGNING_KEY is not set; printed QR codes stop working after a restart")
	}
	signer, err := qrcode.NewSigner(signingKey, 0)
	if err != nil {
		return err
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMin, 5, logger)
	publicLimiter := middleware.NewRateLimiter(60, 20, logger)

	m := metrics.New()
	handler, err := NewHandler(Deps{
		Store:           st,
		Blobs:           blobs,
		Hub:             hub,
		Signer:          signer,
		Metrics:         m,
		Logger:          logger,
		SessionTTL:      cfg.SessionTTL,
		PublicBaseURL:   cfg.PublicBaseURL,
		CompanyName:     cfg.CompanyName,
		LoginRatePerMin: cfg.LoginRatePerMin,
		TrustedProxies:  trusted,
		LoginLimiter:    loginLimiter,
		PublicLimiter:   publicLimiter,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go loginLimiter.SweepEvery(runCtx, time.Minute)
	go publicLimiter.SweepEvery(runCtx, time.Minute)
	go func() {
		if err := hub.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("realtime hub stopped", zap.Error(err))
		}
	}()
	jobs := scheduler.New(st, hub, logger, scheduler.Options{Spec: cfg.SchedulerSpec, Metrics: m})
	go func() {
		if err := jobs.Start(runCtx); err != nil {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()
	go sweepSessions(runCtx, st, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Addr), zap.String("db", cfg.DBDriver), zap.String("blobs", cfg.BlobBackend))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func openBlobStore(cfg Config) (blobstore.Store, error) {
	if cfg.BlobBackend == "supabase" {
		return blobstore.NewSupabase(blobstore.SupabaseConfig{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseKey,
			Bucket:     cfg.SupabaseBucket,
		})
	}
	return blobstore.NewLocal(cfg.BlobDir)
}

func sweepSessions(ctx context.Context, st *store.Store, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Warn("delete expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}
