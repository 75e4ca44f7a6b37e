package bot

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotinalab/rotinabot/internal/domain"
	"github.com/rotinalab/rotinabot/internal/service"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type RoutineResponse struct {
	ID         string `json:"id"`
	OwnerID    int64  `json:"owner_id"`
	Message    string `json:"message"`
	TimeOfDay  string `json:"time_of_day"`
	Kind       string `json:"kind"`
	Date       string `json:"date,omitempty"`
	Weekdays   []int  `json:"weekdays,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
	Timezone   string `json:"timezone"`
	IsTask     bool   `json:"is_task"`
	Status     string `json:"status"`
	Completed  bool   `json:"completed"`
	Next       string `json:"next_occurrence,omitempty"`
}

type createRoutineRequest struct {
	OwnerID    int64  `json:"owner_id"`
	Message    string `json:"message"`
	TimeOfDay  string `json:"time_of_day"`
	Kind       string `json:"kind"`
	Date       string `json:"date,omitempty"`
	Weekdays   []int  `json:"weekdays,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	IsTask     bool   `json:"is_task"`
}

// SetupAPI registers the routine CRUD routes with Basic Auth. Disabled when
// no credentials are configured.
func (b *Bot) SetupAPI() {
	if b.cfg.APIUser == "" || b.cfg.APIPassword == "" {
		return
	}

	http.HandleFunc("/api/routines", b.basicAuth(b.apiRoutines))
	http.HandleFunc("/api/routines/", b.basicAuth(b.apiRoutine))
}

func (b *Bot) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != b.cfg.APIUser || password != b.cfg.APIPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="RotinaBot API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (b *Bot) apiRoutines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ownerID := int64(0)
		if len(b.cfg.AllowedChatIDs) > 0 {
			ownerID = b.cfg.AllowedChatIDs[0]
		}
		routines, err := b.routines.List(ownerID)
		if err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]RoutineResponse, 0, len(routines))
		for _, rt := range routines {
			out = append(out, routineResponse(rt))
		}
		b.jsonResponse(w, out)

	case http.MethodPost:
		var req createRoutineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			b.jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		rt, err := b.routines.Create(createParams(req))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidScheduleSpec) {
				b.jsonError(w, err.Error(), http.StatusBadRequest)
				return
			}
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b.jsonResponse(w, routineResponse(rt))

	default:
		b.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (b *Bot) apiRoutine(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/routines/")
	if id == "" {
		b.jsonError(w, "routine id required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rt, err := b.routines.Get(id)
		if err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rt == nil {
			b.jsonError(w, "not found", http.StatusNotFound)
			return
		}
		b.jsonResponse(w, routineResponse(rt))

	case http.MethodDelete:
		rt, err := b.routines.Get(id)
		if err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rt == nil {
			b.jsonError(w, "not found", http.StatusNotFound)
			return
		}
		if err := b.routines.Delete(id, rt.OwnerID); err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b.jsonResponse(w, map[string]string{"deleted": id})

	default:
		b.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func createParams(req createRoutineRequest) service.CreateParams {
	p := service.CreateParams{
		OwnerID:    req.OwnerID,
		Message:    req.Message,
		TimeOfDay:  req.TimeOfDay,
		Kind:       domain.ScheduleKind(req.Kind),
		Date:       req.Date,
		DayOfMonth: req.DayOfMonth,
		Timezone:   req.Timezone,
		IsTask:     req.IsTask,
	}
	p.Weekdays = intWeekdays(req.Weekdays)
	return p
}

func intWeekdays(days []int) []time.Weekday {
	var out []time.Weekday
	for _, d := range days {
		if d >= 0 && d <= 6 {
			out = append(out, time.Weekday(d))
		}
	}
	return out
}

func routineResponse(r *domain.Routine) RoutineResponse {
	resp := RoutineResponse{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Message:    r.Message,
		TimeOfDay:  r.TimeOfDay,
		Kind:       string(r.Kind),
		Date:       r.Date,
		DayOfMonth: r.DayOfMonth,
		Timezone:   r.Timezone,
		IsTask:     r.IsTask,
		Status:     string(r.Status),
		Completed:  r.Completed,
	}
	for _, d := range r.Weekdays {
		resp.Weekdays = append(resp.Weekdays, int(d))
	}
	if r.NextOccurrenceAt != nil {
		resp.Next = r.NextOccurrenceAt.Format(domain.TimestampLayout)
	}
	return resp
}

func (b *Bot) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (b *Bot) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}
