package apiapp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/security"
	"github.com/liftcare/liftsuite/internal/store"
)

type contextKey string

const (
	userContextKey    contextKey = "user"
	sessionContextKey contextKey = "session"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("lookup user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	if err != nil || !user.Active || !security.VerifyPassword(req.Password, user.PasswordHash) {
		s.metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sessionID, err := security.RandomToken(32)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	csrfToken, err := security.RandomToken(32)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	now := s.now().UTC()
	expires := now.Add(s.sessionTTL)
	sess := model.Session{
		ID:         sessionID,
		UserID:     user.ID,
		CSRFToken:  csrfToken,
		ExpiresAt:  model.TimestampOf(expires),
		CreatedAt:  model.TimestampOf(now),
		LastSeenAt: model.TimestampOf(now),
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.logger.Error("create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	s.metrics.LoginAttempts.WithLabelValues("accepted").Inc()
	s.logger.Info("signed in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.sessionTTL.Seconds()),
		Expires:  expires,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      user,
		"csrfToken": csrfToken,
	})
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	unread, err := s.store.CountUnreadNotifications(r.Context(), user.ID)
	if err != nil {
		s.storeError(w, r, err, "notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"unreadCount": unread,
	})
}

func (s *server) csrfToken(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": sess.CSRFToken})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if sess := sessionFromContext(r.Context()); sess != nil {
		_ = s.store.DeleteSession(r.Context(), sess.ID)
	}
	expireSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		sess, user, err := s.store.LookupSession(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				expireSessionCookie(w)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			s.logger.Error("session check", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "session check failed")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, &sess)
		ctx = context.WithValue(ctx, userContextKey, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		sess := sessionFromContext(r.Context())
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		token := strings.TrimSpace(r.Header.Get(csrfHeaderName))
		if token == "" || token != sess.CSRFToken {
			writeError(w, http.StatusForbidden, "csrf validation failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// only admits users holding one of roles.
func only(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

func userFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

func sessionFromContext(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(sessionContextKey).(*model.Session)
	return sess
}

func expireSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

type userRequest struct {
	Email    string     `json:"email" validate:"required,email,max=254"`
	FullName string     `json:"fullName" validate:"required,max=120"`
	Role     model.Role `json:"role" validate:"required,oneof=developer admin technician client"`
	ClientID string     `json:"clientId"`
	Password string     `json:"password"`
	Active   *bool      `json:"active"`
}

// checkUserRequest applies the role rules shared by create and update.
func (s *server) checkUserRequest(r *http.Request, actor *model.User, req *userRequest) (int, error) {
	req.ClientID = strings.TrimSpace(req.ClientID)
	if (req.Role == model.RoleDeveloper || req.Role == model.RoleAdmin) && actor.Role != model.RoleDeveloper {
		return http.StatusForbidden, errors.New("only developers manage developer and admin accounts")
	}
	if req.Role != model.RoleClient {
		req.ClientID = ""
		return 0, nil
	}
	if req.ClientID == "" {
		return http.StatusBadRequest, errors.New("clientId is required for client users")
	}
	if _, err := s.store.GetClient(r.Context(), req.ClientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return http.StatusBadRequest, errors.New("client does not exist")
		}
		return http.StatusInternalServerError, errors.New("unable to verify client")
	}
	return 0, nil
}

func (s *server) listUsers(w http.ResponseWriter, r *http.Request) {
	role := model.Role(strings.TrimSpace(r.URL.Query().Get("role")))
	if role != "" && !role.Valid() {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	users, err := s.store.ListUsers(r.Context(), role, r.URL.Query().Get("q"))
	if err != nil {
		s.storeError(w, r, err, "users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (s *server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *server) createUser(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	var req userRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if status, err := s.checkUserRequest(r, actor, &req); err != nil {
		writeError(w, status, err.Error())
		return
	}
	hash, err := security.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "unable to create user")
		return
	}
	user := model.User{
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		ClientID:     req.ClientID,
		PasswordHash: hash,
		Active:       req.Active == nil || *req.Active,
	}
	if err := s.store.CreateUser(r.Context(), &user); err != nil {
		s.storeError(w, r, err, "user")
		return
	}
	s.publish(r.Context(), "users", realtime.EventInsert, user.ID, "")
	writeJSON(w, http.StatusCreated, user)
}

func (s *server) updateUser(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	existing, err := s.store.GetUser(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "user")
		return
	}
	if (existing.Role == model.RoleDeveloper || existing.Role == model.RoleAdmin) && actor.Role != model.RoleDeveloper {
		writeError(w, http.StatusForbidden, "only developers manage developer and admin accounts")
		return
	}
	var req userRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if status, err := s.checkUserRequest(r, actor, &req); err != nil {
		writeError(w, status, err.Error())
		return
	}
	if existing.ID == actor.ID && (req.Role != existing.Role || (req.Active != nil && !*req.Active)) {
		writeError(w, http.StatusBadRequest, "you cannot change your own role or deactivate yourself")
		return
	}

	existing.FullName = strings.TrimSpace(req.FullName)
	existing.Role = req.Role
	existing.ClientID = req.ClientID
	if req.Active != nil {
		existing.Active = *req.Active
	}
	existing.PasswordHash = ""
	if req.Password != "" {
		hash, err := security.HashPassword(req.Password)
		if err != nil {
			if errors.Is(err, security.ErrWeakPassword) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "unable to update user")
			return
		}
		existing.PasswordHash = hash
	}
	if err := s.store.UpdateUser(r.Context(), &existing); err != nil {
		s.storeError(w, r, err, "user")
		return
	}
	s.publish(r.Context(), "users", realtime.EventUpdate, existing.ID, "")
	writeJSON(w, http.StatusOK, existing)
}

func (s *server) deactivateUser(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	id := pathID(r)
	if id == actor.ID {
		writeError(w, http.StatusBadRequest, "you cannot deactivate yourself")
		return
	}
	existing, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "user")
		return
	}
	if (existing.Role == model.RoleDeveloper || existing.Role == model.RoleAdmin) && actor.Role != model.RoleDeveloper {
		writeError(w, http.StatusForbidden, "only developers manage developer and admin accounts")
		return
	}
	if err := s.store.DeactivateUser(r.Context(), id); err != nil {
		s.storeError(w, r, err, "user")
		return
	}
	s.publish(r.Context(), "users", realtime.EventUpdate, id, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deactivated"})
}
