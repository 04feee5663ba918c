package clientapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(sessionCookieName); err == nil {
		if _, err := s.fetchMe(r); err == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}
	s.render(w, r, "login", pageData{Title: "Sign in", Error: r.URL.Query().Get("error"), Message: r.URL.Query().Get("message")})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWith(w, r, "/login", "error", "Invalid form submission")
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		redirectWith(w, r, "/login", "error", "Email and password are required")
		return
	}

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	apiReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.apiBaseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		redirectWith(w, r, "/login", "error", "Unable to authenticate")
		return
	}
	apiReq.Header.Set("Content-Type", "application/json")
	setForwardedFor(r, apiReq)
	apiResp, err := s.apiClient.Do(apiReq)
	if err != nil {
		s.logger.Warn("login request", zap.Error(err))
		redirectWith(w, r, "/login", "error", "Authentication service unavailable")
		return
	}
	defer apiResp.Body.Close()

	switch {
	case apiResp.StatusCode == http.StatusTooManyRequests:
		redirectWith(w, r, "/login", "error", "Too many attempts, wait a minute and try again")
		return
	case apiResp.StatusCode != http.StatusOK:
		redirectWith(w, r, "/login", "error", "Invalid credentials")
		return
	}
	for _, setCookie := range apiResp.Header.Values("Set-Cookie") {
		w.Header().Add("Set-Cookie", setCookie)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		if csrf := strings.TrimSpace(r.FormValue("csrf_token")); csrf != "" {
			if _, err := s.sendJSON(r, http.MethodPost, "/api/auth/logout", csrf, nil); err != nil {
				s.logger.Debug("logout", zap.Error(err))
			}
		}
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteStrictMode})
	redirectWith(w, r, "/login", "message", "Signed out")
}

func (s *server) dashboardPage(w http.ResponseWriter, r *http.Request) {
	data := s.basePage(r, "Dashboard", "")
	var payload struct {
		Dashboard map[string]any `json:"dashboard"`
	}
	if err := s.getJSON(r, "/api/dashboard", &payload); err != nil {
		s.logger.Warn("load dashboard", zap.Error(err))
		data.Error = userMessage(err, "Unable to load the dashboard")
	}
	data.Dashboard = payload.Dashboard
	data.Lookups = s.fetchLookups(r, data.User)
	s.render(w, r, "dashboard", data)
}

// resourceFor resolves the {resource} path variable and checks the caller's role.
func (s *server) resourceFor(w http.ResponseWriter, r *http.Request) (resource, bool) {
	res, ok := findResource(mux.Vars(r)["resource"])
	if !ok {
		s.renderError(w, r, http.StatusNotFound, "Page not found")
		return resource{}, false
	}
	if !roleIn(meFrom(r).User.Role, res.Roles) {
		s.renderError(w, r, http.StatusForbidden, "You do not have access to "+strings.ToLower(res.Title))
		return resource{}, false
	}
	return res, true
}

func (s *server) listPage(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	data := s.basePage(r, res.Title, res.Key)
	data.Resource = res
	data.Search = strings.TrimSpace(r.URL.Query().Get("q"))
	data.Status = strings.TrimSpace(r.URL.Query().Get("status"))
	data.CanCreate = roleIn(data.User.Role, res.CreateRoles)
	data.CanExport = res.Export

	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	query := url.Values{"page": {strconv.Itoa(page)}, "per_page": {strconv.Itoa(perPage)}}
	if data.Search != "" {
		query.Set("q", data.Search)
	}
	if data.Status != "" && res.StatusParam != "" {
		query.Set(res.StatusParam, data.Status)
	}
	list, err := s.fetchList(r, res.API, query)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		s.logger.Warn("load list", zap.String("resource", res.Key), zap.Error(err))
		data.Error = userMessage(err, "Unable to load "+strings.ToLower(res.Title))
		list = &listResponse{Items: []map[string]any{}}
	}
	if list.TotalPages == 0 && len(list.Items) > 0 {
		list.Total, list.Page, list.TotalPages = len(list.Items), 1, 1
	}
	data.List = list
	data.Lookups = s.fetchLookups(r, data.User)

	pageURL := func(n int) string {
		q := url.Values{"page": {strconv.Itoa(n)}}
		if data.Search != "" {
			q.Set("q", data.Search)
		}
		if data.Status != "" {
			q.Set("status", data.Status)
		}
		return "/" + res.Key + "?" + q.Encode()
	}
	data.HasPrev = list.Page > 1
	data.HasNext = list.Page < list.TotalPages
	data.PrevURL = pageURL(list.Page - 1)
	data.NextURL = pageURL(list.Page + 1)
	s.render(w, r, "list", data)
}

func (s *server) newRecordPage(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	data := s.basePage(r, "New "+strings.ToLower(res.Singular), res.Key)
	if !roleIn(data.User.Role, res.CreateRoles) {
		s.renderError(w, r, http.StatusForbidden, "You cannot create "+strings.ToLower(res.Title))
		return
	}
	data.Resource = res
	data.Lookups = s.fetchLookups(r, data.User)
	s.render(w, r, "form", data)
}

func (s *server) createRecord(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	back := "/" + res.Key + "/new"
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		redirectWith(w, r, back, "error", "Invalid form submission")
		return
	}
	csrf := strings.TrimSpace(r.FormValue("csrf_token"))
	if csrf == "" {
		redirectWith(w, r, back, "error", "Missing csrf token")
		return
	}

	var (
		out map[string]any
		err error
	)
	if res.Multipart {
		var body *bytes.Buffer
		var contentType string
		body, contentType, err = multipartFromForm(r, res.Form)
		if err == nil {
			out, err = s.sendMultipart(r, res.API, csrf, contentType, body)
		}
	} else {
		var payload map[string]any
		payload, err = formPayload(r, res.Form, nil)
		if err == nil {
			out, err = s.sendJSON(r, http.MethodPost, res.API, csrf, payload)
		}
	}
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		redirectWith(w, r, back, "error", userMessage(err, "Unable to create "+strings.ToLower(res.Singular)))
		return
	}
	if id := str(out["id"]); id != "" {
		redirectWith(w, r, "/"+res.Key+"/"+url.PathEscape(id), "message", res.Singular+" created")
		return
	}
	redirectWith(w, r, "/"+res.Key, "message", res.Singular+" created")
}

func (s *server) detailPage(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	data := s.basePage(r, res.Singular, res.Key)
	data.Resource = res

	record := map[string]any{}
	if err := s.getJSON(r, res.API+"/"+url.PathEscape(id), &record); err != nil {
		var ae *apiError
		switch {
		case errors.Is(err, errUnauthorized):
			http.Redirect(w, r, "/login", http.StatusFound)
		case errors.As(err, &ae) && (ae.Status == http.StatusNotFound || ae.Status == http.StatusForbidden):
			s.renderError(w, r, http.StatusNotFound, res.Singular+" not found")
		default:
			s.logger.Warn("load record", zap.String("resource", res.Key), zap.String("id", id), zap.Error(err))
			s.renderError(w, r, http.StatusBadGateway, userMessage(err, "Unable to load "+strings.ToLower(res.Singular)))
		}
		return
	}
	data.Record = record
	data.Actions = res.availableActions(data.User.Role, str(record["status"]))
	data.CanDelete = roleIn(data.User.Role, res.CreateRoles)
	data.Lookups = s.fetchLookups(r, data.User)

	if res.Attachments {
		var attachments struct {
			Items []map[string]any `json:"items"`
		}
		if err := s.getJSON(r, res.API+"/"+url.PathEscape(id)+"/attachments", &attachments); err != nil {
			s.logger.Debug("load attachments", zap.Error(err))
		}
		data.Attachments = attachments.Items
	}
	s.render(w, r, "detail", data)
}

func (s *server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	detail := "/" + res.Key + "/" + url.PathEscape(id)
	if err := r.ParseForm(); err != nil {
		redirectWith(w, r, detail, "error", "Invalid form submission")
		return
	}
	if _, err := s.sendJSON(r, http.MethodDelete, res.API+"/"+url.PathEscape(id), r.FormValue("csrf_token"), nil); err != nil {
		redirectWith(w, r, detail, "error", userMessage(err, "Unable to delete "+strings.ToLower(res.Singular)))
		return
	}
	redirectWith(w, r, "/"+res.Key, "message", res.Singular+" deleted")
}

func (s *server) recordPDF(w http.ResponseWriter, r *http.Request) {
	res, ok := findResource(mux.Vars(r)["resource"])
	if !ok || !res.PDF {
		http.NotFound(w, r)
		return
	}
	s.passthrough(w, r, res.API+"/"+url.PathEscape(mux.Vars(r)["id"])+"/pdf")
}

func (s *server) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	detail := "/" + res.Key + "/" + url.PathEscape(id)
	if !res.Attachments {
		redirectWith(w, r, detail, "error", "Photos cannot be attached here")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		redirectWith(w, r, detail, "error", "Choose a photo to upload")
		return
	}
	body, contentType, err := multipartFromForm(r, []field{{Name: "photo", Kind: "file", Required: true}})
	if err != nil {
		redirectWith(w, r, detail, "error", userMessage(err, "Choose a photo to upload"))
		return
	}
	if _, err := s.sendMultipart(r, res.API+"/"+url.PathEscape(id)+"/attachments", r.FormValue("csrf_token"), contentType, body); err != nil {
		redirectWith(w, r, detail, "error", userMessage(err, "Unable to upload photo"))
		return
	}
	redirectWith(w, r, detail, "message", "Photo uploaded")
}

func (s *server) notificationsPage(w http.ResponseWriter, r *http.Request) {
	data := s.basePage(r, "Notifications", "notifications")
	query := url.Values{"page": {strconv.Itoa(parsePositiveInt(r.URL.Query().Get("page"), 1))}, "per_page": {"50"}}
	list, err := s.fetchList(r, "/api/notifications", query)
	if err != nil {
		data.Error = userMessage(err, "Unable to load notifications")
		list = &listResponse{Items: []map[string]any{}}
	}
	data.List = list
	data.Items = list.Items
	data.HasPrev = list.Page > 1
	data.HasNext = list.Page < list.TotalPages
	data.PrevURL = "/notifications?page=" + strconv.Itoa(list.Page-1)
	data.NextURL = "/notifications?page=" + strconv.Itoa(list.Page+1)
	s.render(w, r, "notifications", data)
}

func (s *server) readAllNotifications(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWith(w, r, "/notifications", "error", "Invalid form submission")
		return
	}
	if _, err := s.sendJSON(r, http.MethodPost, "/api/notifications/read-all", r.FormValue("csrf_token"), nil); err != nil {
		redirectWith(w, r, "/notifications", "error", userMessage(err, "Unable to update notifications"))
		return
	}
	redirectWith(w, r, "/notifications", "message", "All notifications marked as read")
}

// readNotification marks one notification read and follows its link when it has one.
func (s *server) readNotification(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWith(w, r, "/notifications", "error", "Invalid form submission")
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := s.sendJSON(r, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", r.FormValue("csrf_token"), nil); err != nil {
		redirectWith(w, r, "/notifications", "error", userMessage(err, "Unable to update notification"))
		return
	}
	if link := r.FormValue("link"); strings.HasPrefix(link, "/") && !strings.HasPrefix(link, "//") {
		http.Redirect(w, r, link, http.StatusFound)
		return
	}
	http.Redirect(w, r, "/notifications", http.StatusFound)
}

// publicQRPage is what a phone shows after scanning an elevator sticker. No session is needed.
func (s *server) publicQRPage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Elevator"}
	info := map[string]any{}
	if err := s.getJSON(r, "/api/public/qr/"+url.PathEscape(mux.Vars(r)["token"]), &info); err != nil {
		var ae *apiError
		status := http.StatusBadGateway
		if errors.As(err, &ae) {
			status = ae.Status
		}
		if status == http.StatusNotFound {
			s.renderError(w, r, http.StatusNotFound, "This QR code is not valid any more")
			return
		}
		s.renderError(w, r, status, userMessage(err, "Unable to look up this elevator"))
		return
	}
	data.Public = info
	s.render(w, r, "public_qr", data)
}
