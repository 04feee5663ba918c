package clientapp

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/middleware"
)

const (
	csrfHeaderName    = "X-CSRF-Token"
	sessionCookieName = "liftsuite_session"
	maxLookupRows     = 200
	maxUploadBytes    = 25 << 20
	perPage           = 25
)

//go:embed templates/*.html assets/*
var content embed.FS

var pageNames = []string{"login", "dashboard", "list", "detail", "form", "notifications", "public_qr", "error"}

type server struct {
	apiBaseURL string
	apiClient  *http.Client
	logger     *zap.Logger
	pages      map[string]*template.Template
	assets     http.Handler
	realtime   *httputil.ReverseProxy
}

// NewHandler builds the browser-facing handler that renders pages from API data.
func NewHandler(cfg Config, logger *zap.Logger) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	apiURL, err := url.Parse(strings.TrimRight(cfg.APIBaseURL, "/"))
	if err != nil || apiURL.Scheme == "" || apiURL.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.APIBaseURL)
	}
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(content, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	assets, err := fs.Sub(content, "assets")
	if err != nil {
		return nil, err
	}

	s := &server{
		apiBaseURL: apiURL.String(),
		apiClient:  &http.Client{Timeout: timeout},
		logger:     logger.Named("client"),
		pages:      pages,
		assets:     http.StripPrefix("/assets/", http.FileServer(http.FS(assets))),
		realtime:   newRealtimeProxy(apiURL, logger),
	}

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"script-src 'self'",
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
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Page not found")
	})

	r.PathPrefix("/assets/").Handler(s.assets).Methods(http.MethodGet)
	r.HandleFunc("/login", s.loginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	r.HandleFunc("/qr/{token}", s.publicQRPage).Methods(http.MethodGet)
	r.HandleFunc("/realtime", s.proxyRealtime).Methods(http.MethodGet)

	r.Handle("/", s.session(s.dashboardPage)).Methods(http.MethodGet)
	r.Handle("/notifications", s.session(s.notificationsPage)).Methods(http.MethodGet)
	r.Handle("/notifications/read-all", s.session(s.readAllNotifications)).Methods(http.MethodPost)
	r.Handle("/notifications/{id}/read", s.session(s.readNotification)).Methods(http.MethodPost)

	r.HandleFunc("/exports/{resource:[a-z-]+}.{format:csv|xlsx}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		s.passthrough(w, r, "/api/exports/"+vars["resource"]+"."+vars["format"])
	}).Methods(http.MethodGet)
	r.HandleFunc("/attachments/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.passthrough(w, r, "/api/attachments/"+url.PathEscape(mux.Vars(r)["id"]))
	}).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}/file", func(w http.ResponseWriter, r *http.Request) {
		s.passthrough(w, r, "/api/documents/"+url.PathEscape(mux.Vars(r)["id"])+"/file")
	}).Methods(http.MethodGet)
	r.HandleFunc("/elevators/{id}/qr.png", func(w http.ResponseWriter, r *http.Request) {
		s.passthrough(w, r, "/api/elevators/"+url.PathEscape(mux.Vars(r)["id"])+"/qr.png")
	}).Methods(http.MethodGet)
	r.HandleFunc("/{resource}/{id}/pdf", s.recordPDF).Methods(http.MethodGet)

	r.Handle("/{resource}", s.session(s.listPage)).Methods(http.MethodGet)
	r.Handle("/{resource}", s.session(s.createRecord)).Methods(http.MethodPost)
	r.Handle("/{resource}/new", s.session(s.newRecordPage)).Methods(http.MethodGet)
	r.Handle("/{resource}/{id}", s.session(s.detailPage)).Methods(http.MethodGet)
	r.Handle("/{resource}/{id}/delete", s.session(s.deleteRecord)).Methods(http.MethodPost)
	r.Handle("/{resource}/{id}/attachments", s.session(s.uploadAttachment)).Methods(http.MethodPost)
	r.Handle("/{resource}/{id}/actions/{action}", s.session(s.runAction)).Methods(http.MethodPost)
	return r
}

// newRealtimeProxy forwards the websocket upgrade to the API. The inbound Host header is kept
// so the API's same-origin check sees the browser's origin host.
func newRealtimeProxy(apiURL *url.URL, logger *zap.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(apiURL)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.URL.Path = strings.TrimRight(apiURL.Path, "/") + "/api/realtime"
		r.URL.RawPath = ""
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("realtime proxy", zap.Error(err))
		http.Error(w, "realtime unavailable", http.StatusBadGateway)
	}
	return proxy
}

// proxyRealtime clears the server write deadline before handing the upgrade to the proxy.
func (s *server) proxyRealtime(w http.ResponseWriter, r *http.Request) {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("clear write deadline", zap.Error(err))
	}
	s.realtime.ServeHTTP(w, r)
}

type ctxKey int

const meKey ctxKey = iota

// session loads the caller from the API and redirects to /login when the cookie is missing or stale.
func (s *server) session(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(sessionCookieName); err != nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		me, err := s.fetchMe(r)
		if err != nil {
			if errors.Is(err, errUnauthorized) {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			s.logger.Warn("load session", zap.Error(err))
			s.renderError(w, r, http.StatusBadGateway, "The service is unavailable, try again shortly")
			return
		}
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), meKey, me)))
	})
}

func meFrom(r *http.Request) *meResponse {
	me, _ := r.Context().Value(meKey).(*meResponse)
	if me == nil {
		return &meResponse{}
	}
	return me
}

// basePage fills the fields every signed-in page shares.
func (s *server) basePage(r *http.Request, title, current string) pageData {
	me := meFrom(r)
	data := pageData{
		Title:   title,
		User:    me.User,
		Unread:  me.UnreadCount,
		Nav:     navFor(me.User.Role, current),
		Error:   r.URL.Query().Get("error"),
		Message: r.URL.Query().Get("message"),
	}
	if csrf, err := s.fetchCSRFToken(r); err == nil {
		data.CSRF = csrf
	} else {
		s.logger.Debug("load csrf token", zap.Error(err))
	}
	return data
}

func (s *server) render(w http.ResponseWriter, r *http.Request, page string, data pageData) {
	if err := renderHTMLTemplate(w, s.pages[page], data); err != nil {
		s.logger.Error("render template", zap.String("page", page), zap.Error(err), zap.String("request_id", middleware.RequestIDFrom(r.Context())))
		http.Error(w, "template render failed", http.StatusInternalServerError)
	}
}

func (s *server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	me := meFrom(r)
	data := pageData{Title: http.StatusText(status), Error: msg, User: me.User, Nav: navFor(me.User.Role, "")}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages["error"].ExecuteTemplate(w, "layout", data); err != nil {
		s.logger.Error("render error page", zap.Error(err))
	}
}

// redirectWith sends the browser to target with an error or message banner.
func redirectWith(w http.ResponseWriter, r *http.Request, target, key, text string) {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	http.Redirect(w, r, target+sep+key+"="+url.QueryEscape(text), http.StatusFound)
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// Run serves the client until ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler, err := NewHandler(cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("client listening", zap.String("addr", cfg.Addr), zap.String("api", cfg.APIBaseURL))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
