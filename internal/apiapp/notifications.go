package apiapp

import (
	"net/http"

	"github.com/liftcare/liftsuite/internal/realtime"
)

func (s *server) listNotifications(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	unreadOnly := parseBoolQueryValue(r.URL.Query().Get("unread"))
	page, err := s.store.ListNotifications(r.Context(), user.ID, unreadOnly, listFilter(r))
	if err != nil {
		s.storeError(w, r, err, "notifications")
		return
	}
	writePage(w, page)
}

func (s *server) readNotification(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id := pathID(r)
	if err := s.store.MarkNotificationRead(r.Context(), id, user.ID); err != nil {
		s.storeError(w, r, err, "notification")
		return
	}
	s.publish(r.Context(), "notifications", realtime.EventUpdate, id, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "notification read"})
}

func (s *server) readAllNotifications(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	n, err := s.store.MarkAllNotificationsRead(r.Context(), user.ID)
	if err != nil {
		s.storeError(w, r, err, "notifications")
		return
	}
	if n > 0 {
		s.publish(r.Context(), "notifications", realtime.EventUpdate, "", "")
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id := pathID(r)
	if err := s.store.DeleteNotification(r.Context(), id, user.ID); err != nil {
		s.storeError(w, r, err, "notification")
		return
	}
	s.publish(r.Context(), "notifications", realtime.EventDelete, id, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "notification deleted"})
}
