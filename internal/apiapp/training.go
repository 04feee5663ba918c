package apiapp

import (
	"net/http"
	"strings"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
)

type trainingModuleRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	Content      string `json:"content" validate:"max=100000"`
	PassingScore int64  `json:"passingScore" validate:"gte=0,lte=100"`
}

type trainingAttemptRequest struct {
	Score int64 `json:"score" validate:"gte=0,lte=100"`
}

func (req trainingModuleRequest) apply(m *model.TrainingModule) {
	m.Title = strings.TrimSpace(req.Title)
	m.Description = strings.TrimSpace(req.Description)
	m.Content = req.Content
	m.PassingScore = req.PassingScore
}

func (s *server) listTrainingModules(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.ListTrainingModules(r.Context(), listFilter(r))
	if err != nil {
		s.storeError(w, r, err, "training modules")
		return
	}
	writePage(w, page)
}

func (s *server) getTrainingModule(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetTrainingModule(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "training module")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) createTrainingModule(w http.ResponseWriter, r *http.Request) {
	var req trainingModuleRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var m model.TrainingModule
	req.apply(&m)
	if err := s.store.CreateTrainingModule(r.Context(), &m); err != nil {
		s.storeError(w, r, err, "training module")
		return
	}
	s.publish(r.Context(), "rescue_training_modules", realtime.EventInsert, m.ID, "")
	writeJSON(w, http.StatusCreated, m)
}

func (s *server) updateTrainingModule(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetTrainingModule(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "training module")
		return
	}
	var req trainingModuleRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.apply(&m)
	if err := s.store.UpdateTrainingModule(r.Context(), &m); err != nil {
		s.storeError(w, r, err, "training module")
		return
	}
	s.publish(r.Context(), "rescue_training_modules", realtime.EventUpdate, m.ID, "")
	writeJSON(w, http.StatusOK, m)
}

func (s *server) deleteTrainingModule(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := s.store.DeleteTrainingModule(r.Context(), id); err != nil {
		s.storeError(w, r, err, "training module")
		return
	}
	s.publish(r.Context(), "rescue_training_modules", realtime.EventDelete, id, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "training module deleted"})
}

// listTrainingAttempts shows staff every attempt on a module; everyone else sees their own.
func (s *server) listTrainingAttempts(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	m, err := s.store.GetTrainingModule(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "training module")
		return
	}
	userID := user.ID
	if user.Role.IsStaff() {
		userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	items, err := s.store.ListTrainingAttempts(r.Context(), m.ID, userID)
	if err != nil {
		s.storeError(w, r, err, "training attempts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *server) recordTrainingAttempt(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	m, err := s.store.GetTrainingModule(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "training module")
		return
	}
	var req trainingAttemptRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a := model.TrainingAttempt{
		ModuleID: m.ID,
		UserID:   user.ID,
		Score:    req.Score,
		Passed:   req.Score >= m.PassingScore,
	}
	if err := s.store.CreateTrainingAttempt(r.Context(), &a); err != nil {
		s.storeError(w, r, err, "training attempt")
		return
	}
	s.publish(r.Context(), "rescue_training_attempts", realtime.EventInsert, a.ID, "")
	writeJSON(w, http.StatusCreated, a)
}
