package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"festplan/internal/catalog"
	"festplan/internal/ics"
	appLog "festplan/internal/log"
	"festplan/internal/model"
	"festplan/internal/offline"
	"festplan/internal/plan"
	"festplan/internal/schedule"
)

// maxUpload bounds import bodies; a QR screenshot is well under this.
const maxUpload = 4 << 20

func (s *Server) catalog() *catalog.Catalog { return s.deps.Catalog.Get() }

// event resolves the {eventId} route variable, writing a 404 on a miss.
func (s *Server) event(w http.ResponseWriter, r *http.Request) (model.Event, bool) {
	id := mux.Vars(r)["eventId"]
	ev, err := s.catalog().Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return model.Event{}, false
	}
	return ev, true
}

// GET /api/events?category=music&day=Friday
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := model.Category(q.Get("category"))
	day := model.Day(q.Get("day"))

	events := make([]model.Event, 0)
	for _, ev := range s.catalog().ByCategory(category) {
		if day != "" && ev.Day != day {
			continue
		}
		events = append(events, ev)
	}
	writeJSON(w, http.StatusOK, events)
}

// GET /api/locations
func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog().Locations())
}

// GET /api/plan[?group=status]
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if s.notModified(w, r, "plan-"+r.URL.Query().Get("group")) {
		return
	}
	events := s.catalog().Events()
	prefs := s.deps.Prefs.Snapshot()
	if r.URL.Query().Get("group") == "status" {
		writeJSON(w, http.StatusOK, nonNil(schedule.MyPlanByStatus(events, prefs)))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(schedule.MyPlan(events, prefs)))
}

// GET /api/timetable?category=music&day=Friday
func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day := model.Day(q.Get("day"))
	if _, ok := day.Index(); !ok {
		writeError(w, http.StatusBadRequest, "day must be one of Friday, Saturday, Sunday, Monday")
		return
	}
	groups := schedule.Timetable(s.catalog().Events(), model.Category(q.Get("category")), day, s.deps.Prefs.Snapshot())
	writeJSON(w, http.StatusOK, nonNil(groups))
}

type preferenceResponse struct {
	EventID string       `json:"eventId"`
	Status  model.Status `json:"status"`
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	if s.notModified(w, r, "preferences") {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Prefs.Snapshot())
}

func (s *Server) handleClearPreferences(w http.ResponseWriter, _ *http.Request) {
	s.deps.Prefs.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.event(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, preferenceResponse{EventID: ev.ID, Status: s.deps.Prefs.Status(ev.ID)})
}

// PUT /api/preferences/{eventId} {"status":"must-see"}
//
// Toggle semantics: putting the current status clears it.
func (s *Server) handleTogglePreference(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.event(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpload)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target, err := model.ParseStatus(body.Status)
	if err != nil || target == model.StatusNone {
		writeError(w, http.StatusBadRequest, "status must be one of must-see, nice, have")
		return
	}
	next := s.deps.Prefs.Toggle(ev.ID, target)
	writeJSON(w, http.StatusOK, preferenceResponse{EventID: ev.ID, Status: next})
}

func (s *Server) handleDeletePreference(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.event(w, r)
	if !ok {
		return
	}
	if cur := s.deps.Prefs.Status(ev.ID); cur != model.StatusNone {
		s.deps.Prefs.Toggle(ev.ID, cur)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEventICS(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.event(w, r)
	if !ok {
		return
	}
	start, err := s.deps.Config.FestivalStartTime()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doc, err := ics.GenerateICS(ev, start, s.deps.Clock.Now())
	if err != nil {
		appLog.Error("api ics: generate failed", err, "event_id", ev.ID)
		writeError(w, http.StatusInternalServerError, "failed to build calendar file")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ics.FileName(ev)+`"`)
	_, _ = io.WriteString(w, doc)
}

func (s *Server) handleEventGoogle(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.event(w, r)
	if !ok {
		return
	}
	start, err := s.deps.Config.FestivalStartTime()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	link, err := ics.GoogleCalendarURL(ev, start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

// reminderResponse reports the stored record and the permission outcome
// so the UI can explain why a reminder will not fire.
type reminderResponse struct {
	Reminder   model.Reminder `json:"reminder"`
	Permission string         `json:"permission"`
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	// Reminder times are whole minutes, so completion only changes on a
	// minute boundary.
	minute := s.deps.Clock.Now().Truncate(time.Minute).Unix()
	if s.notModified(w, r, "reminders-"+strconv.FormatInt(minute, 10)) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Reminders.List(s.catalog()))
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["eventId"]
	rem, ok := s.deps.Reminders.Store().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no reminder for "+id)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// PUT /api/reminders/{eventId} {"date":"2025-02-28","time":"19:00"}
func (s *Server) handleSetReminder(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.event(w, r)
	if !ok {
		return
	}
	var body struct {
		Date      string `json:"date"`
		Time      string `json:"time"`
		EventName string `json:"eventName"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpload)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.EventName == "" {
		body.EventName = ev.Name
	}
	perm, err := s.deps.Reminders.SetReminder(r.Context(), ev.ID, body.Date, body.Time, body.EventName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rem, _ := s.deps.Reminders.Store().Get(ev.ID)
	writeJSON(w, http.StatusOK, reminderResponse{Reminder: rem, Permission: string(perm)})
}

func (s *Server) handleClearReminder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["eventId"]
	if !s.deps.Reminders.ClearReminder(id) {
		writeError(w, http.StatusNotFound, "no reminder for "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePermission(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"permission": string(s.deps.Reminders.Permission())})
}

func (s *Server) handleRequestPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := s.deps.Reminders.RequestPermission(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"permission": string(perm)})
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	if s.notModified(w, r, "friends") {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Friends.List())
}

func (s *Server) handleClearFriends(w http.ResponseWriter, _ *http.Request) {
	s.deps.Friends.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func friendIndex(r *http.Request) int {
	// The route pattern guarantees digits.
	i, _ := strconv.Atoi(mux.Vars(r)["index"])
	return i
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Friends.Remove(friendIndex(r)); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFriendPlan(w http.ResponseWriter, r *http.Request) {
	friends := s.deps.Friends.List()
	i := friendIndex(r)
	if i >= len(friends) {
		writeError(w, http.StatusNotFound, "no such friend")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       friends[i].Name,
		"exportedAt": friends[i].ExportedAt,
		"plan":       nonNil(schedule.FriendPlan(s.catalog().Events(), friends[i])),
	})
}

func (s *Server) handleOverlap(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["eventId"]
	writeJSON(w, http.StatusOK, schedule.Overlap(id, s.deps.Friends.List()))
}

func (s *Server) export(r *http.Request) model.FriendSchedule {
	return plan.Export(r.URL.Query().Get("name"), s.deps.Prefs.Snapshot(), s.deps.Clock.Now())
}

// GET /api/export?name=Sam
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	fs := s.export(r)
	data, err := plan.MarshalExport(fs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+plan.ExportFileName(fs.Name)+`"`)
	_, _ = w.Write(data)
}

// GET /api/export.png?name=Sam
func (s *Server) handleExportQR(w http.ResponseWriter, r *http.Request) {
	png, err := plan.EncodeQR(s.export(r))
	if err != nil {
		appLog.Error("api export: qr failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// POST /api/import with a JSON export or a PNG/JPEG of its QR code.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	fs, err := plan.Import(s.deps.Friends, data)
	if err != nil {
		if errors.Is(err, plan.ErrInvalidFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	appLog.Info("friend schedule imported", "name", fs.Name, "events", len(fs.Schedule))
	writeJSON(w, http.StatusCreated, fs)
}

type workerStatus struct {
	Version   string           `json:"version"`
	State     offline.State    `json:"state"`
	Scheduled int              `json:"scheduled"`
	Clients   []offline.Client `json:"clients"`
}

func (s *Server) handleWorkerStatus(w http.ResponseWriter, _ *http.Request) {
	wk := s.deps.Worker
	writeJSON(w, http.StatusOK, workerStatus{
		Version:   wk.Version(),
		State:     wk.State(),
		Scheduled: wk.Scheduled(),
		Clients:   wk.Clients().List(),
	})
}

// POST /api/worker/message {"type":"SKIP_WAITING"}
func (s *Server) handleWorkerMessage(w http.ResponseWriter, r *http.Request) {
	var msg offline.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpload)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.deps.Worker.PostMessage(msg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, offline.ErrInboxFull) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWorkerPush(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := s.deps.Worker.Push(data); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Center == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Center.Active())
}

// POST /api/notifications/{tag}/click?action=view
func (s *Server) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	cl, err := s.deps.Worker.HandleNotificationClick(r.Context(), tag, r.URL.Query().Get("action"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cl)
}

func nonNil(groups []schedule.Group) []schedule.Group {
	if groups == nil {
		return []schedule.Group{}
	}
	return groups
}
