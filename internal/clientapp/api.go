package clientapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/model"
)

// errUnauthorized means the API rejected the forwarded session.
var errUnauthorized = errors.New("unauthorized")

// apiError carries the message of a non-2xx API response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

type meResponse struct {
	User        sessionUser `json:"user"`
	UnreadCount int         `json:"unreadCount"`
}

type sessionUser struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	FullName string     `json:"fullName"`
	Role     model.Role `json:"role"`
	ClientID string     `json:"clientId"`
}

type authTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

type listResponse struct {
	Items      []map[string]any `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalPages int              `json:"totalPages"`
}

func copySessionCookieHeader(from *http.Request, to *http.Request) {
	for _, c := range from.Cookies() {
		if c.Name == sessionCookieName {
			to.Header.Set("Cookie", c.Name+"="+c.Value)
			return
		}
	}
}

// apiRequest builds a request against the API carrying the caller's session cookie.
func (s *server) apiRequest(r *http.Request, method, path string, body io.Reader) (*http.Request, error) {
	apiReq, err := http.NewRequestWithContext(r.Context(), method, s.apiBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	copySessionCookieHeader(r, apiReq)
	setForwardedFor(r, apiReq)
	if rid := r.Header.Get("X-Request-ID"); rid != "" {
		apiReq.Header.Set("X-Request-ID", rid)
	}
	return apiReq, nil
}

// setForwardedFor appends the browser address to X-Forwarded-For so the API rate limits per
// visitor rather than per client app.
func setForwardedFor(r, apiReq *http.Request) {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if prior := strings.Join(r.Header.Values("X-Forwarded-For"), ", "); prior != "" {
		peer = prior + ", " + peer
	}
	apiReq.Header.Set("X-Forwarded-For", peer)
}

// getJSON fetches path and decodes the body into dst.
func (s *server) getJSON(r *http.Request, path string, dst any) error {
	apiReq, err := s.apiRequest(r, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	apiResp, err := s.apiClient.Do(apiReq)
	if err != nil {
		return err
	}
	defer apiResp.Body.Close()
	if err := responseError(apiResp); err != nil {
		return err
	}
	return json.NewDecoder(apiResp.Body).Decode(dst)
}

// sendJSON posts payload with the CSRF token and returns the decoded response body.
func (s *server) sendJSON(r *http.Request, method, path, csrfToken string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	apiReq, err := s.apiRequest(r, method, path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		apiReq.Header.Set("Content-Type", "application/json")
	}
	apiReq.Header.Set(csrfHeaderName, csrfToken)
	return s.doJSON(apiReq)
}

// sendMultipart forwards an already encoded multipart body.
func (s *server) sendMultipart(r *http.Request, path, csrfToken, contentType string, body io.Reader) (map[string]any, error) {
	apiReq, err := s.apiRequest(r, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	apiReq.Header.Set("Content-Type", contentType)
	apiReq.Header.Set(csrfHeaderName, csrfToken)
	return s.doJSON(apiReq)
}

func (s *server) doJSON(apiReq *http.Request) (map[string]any, error) {
	apiResp, err := s.apiClient.Do(apiReq)
	if err != nil {
		return nil, err
	}
	defer apiResp.Body.Close()
	if err := responseError(apiResp); err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.NewDecoder(apiResp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return out, nil
}

// responseError turns a non-2xx response into errUnauthorized or an *apiError.
func responseError(apiResp *http.Response) error {
	if apiResp.StatusCode >= 200 && apiResp.StatusCode < 300 {
		return nil
	}
	if apiResp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	msg := http.StatusText(apiResp.StatusCode)
	raw, _ := io.ReadAll(io.LimitReader(apiResp.Body, 64<<10))
	var payload map[string]string
	if err := json.Unmarshal(raw, &payload); err == nil && strings.TrimSpace(payload["error"]) != "" {
		msg = payload["error"]
	}
	return &apiError{Status: apiResp.StatusCode, Message: msg}
}

// userMessage is the text shown in the page banner for err.
func userMessage(err error, fallback string) string {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Message
	}
	var fe formError
	if errors.As(err, &fe) {
		return string(fe)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The service took too long to answer"
	}
	return fallback
}

func (s *server) fetchMe(r *http.Request) (*meResponse, error) {
	var me meResponse
	if err := s.getJSON(r, "/api/auth/me", &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (s *server) fetchCSRFToken(r *http.Request) (string, error) {
	var payload authTokenResponse
	if err := s.getJSON(r, "/api/auth/csrf", &payload); err != nil {
		return "", err
	}
	if payload.CSRFToken == "" {
		return "", errors.New("missing csrf token")
	}
	return payload.CSRFToken, nil
}

func (s *server) fetchList(r *http.Request, apiPath string, query url.Values) (*listResponse, error) {
	path := apiPath
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var payload listResponse
	if err := s.getJSON(r, path, &payload); err != nil {
		return nil, err
	}
	if payload.Items == nil {
		payload.Items = []map[string]any{}
	}
	return &payload, nil
}

// lookups resolves ids to display names for list and detail pages.
type lookups struct {
	Elevators   map[string]string
	Clients     map[string]string
	Users       map[string]string
	Technicians []option
	Checklists  []option
}

type option struct {
	Value string
	Label string
}

// fetchLookups loads what the caller can see. Lookups the role may not read stay empty.
func (s *server) fetchLookups(r *http.Request, user sessionUser) lookups {
	out := lookups{Elevators: map[string]string{}, Clients: map[string]string{}, Users: map[string]string{}}
	all := url.Values{"per_page": {strconv.Itoa(maxLookupRows)}}

	if list, err := s.fetchList(r, "/api/elevators", all); err == nil {
		for _, item := range list.Items {
			out.Elevators[str(item["id"])] = str(item["code"]) + " · " + str(item["buildingName"])
		}
	} else {
		s.logger.Debug("load elevators", zap.Error(err))
	}
	if list, err := s.fetchList(r, "/api/clients", all); err == nil {
		for _, item := range list.Items {
			out.Clients[str(item["id"])] = str(item["name"])
		}
	}
	if user.Role.IsStaff() {
		var users struct {
			Items []sessionUser `json:"items"`
		}
		if err := s.getJSON(r, "/api/users", &users); err == nil {
			for _, u := range users.Items {
				out.Users[u.ID] = u.FullName
				if u.Role == model.RoleTechnician {
					out.Technicians = append(out.Technicians, option{Value: u.ID, Label: u.FullName})
				}
			}
		}
		var checklists struct {
			Templates []struct {
				Type string `json:"type"`
				Name string `json:"name"`
			} `json:"templates"`
		}
		if err := s.getJSON(r, "/api/checklists", &checklists); err == nil {
			for _, t := range checklists.Templates {
				out.Checklists = append(out.Checklists, option{Value: t.Type, Label: t.Name})
			}
		}
	}
	if user.ID != "" {
		out.Users[user.ID] = user.FullName
	}
	return out
}

// passthrough streams a GET from the API to the browser, keeping the download headers.
func (s *server) passthrough(w http.ResponseWriter, r *http.Request, apiPath string) {
	if r.URL.RawQuery != "" {
		apiPath += "?" + r.URL.RawQuery
	}
	apiReq, err := s.apiRequest(r, http.MethodGet, apiPath, nil)
	if err != nil {
		http.Error(w, "upstream request failed", http.StatusInternalServerError)
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		apiReq.Header.Set("If-None-Match", inm)
	}
	apiResp, err := s.apiClient.Do(apiReq)
	if err != nil {
		s.logger.Warn("passthrough", zap.String("path", apiPath), zap.Error(err))
		http.Error(w, "upstream service unavailable", http.StatusBadGateway)
		return
	}
	defer apiResp.Body.Close()
	if apiResp.StatusCode == http.StatusUnauthorized {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	for _, h := range []string{"Content-Type", "Content-Disposition", "Content-Length", "ETag", "Cache-Control"} {
		if v := apiResp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(apiResp.StatusCode)
	_, _ = io.Copy(w, apiResp.Body)
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
