package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/pkg/core/cascade"
	"github.com/carebridge/shift-cascade/pkg/db"
)

var validate = validator.New()

// Handler holds the engine and maps HTTP requests onto its operations
type Handler struct {
	engine *cascade.Engine
	logger *zap.Logger
}

// NewHandler creates the HTTP handler set over an engine
func NewHandler(engine *cascade.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Request bodies

type candidateRequest struct {
	CaregiverID   string `json:"caregiverId" validate:"required"`
	CaregiverName string `json:"caregiverName" validate:"required"`
}

type startCascadeRequest struct {
	Candidates []candidateRequest `json:"candidates" validate:"required,min=1,dive"`
}

type acceptOfferRequest struct {
	CallerCaregiverID string `json:"callerCaregiverId" validate:"required"`
}

type declineOfferRequest struct {
	CallerCaregiverID string `json:"callerCaregiverId" validate:"required"`
	Reason            string `json:"reason,omitempty" validate:"max=500"`
}

// Response bodies

type offerRecordView struct {
	CaregiverID string     `json:"caregiverId"`
	Response    string     `json:"response"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

type cascadeStateView struct {
	RankedCandidates      []db.Candidate    `json:"rankedCandidates"`
	CurrentOfferIndex     int               `json:"currentOfferIndex"`
	CurrentOfferExpiresAt *time.Time        `json:"currentOfferExpiresAt,omitempty"`
	OfferHistory          []offerRecordView `json:"offerHistory"`
}

type shiftView struct {
	ShiftID       string            `json:"shiftId"`
	ElderID       string            `json:"elderId"`
	ElderName     string            `json:"elderName"`
	GroupID       string            `json:"groupId,omitempty"`
	AgencyID      string            `json:"agencyId,omitempty"`
	Date          string            `json:"date"`
	StartTime     string            `json:"startTime"`
	EndTime       string            `json:"endTime"`
	CreatedBy     string            `json:"createdBy"`
	CaregiverID   string            `json:"caregiverId,omitempty"`
	CaregiverName string            `json:"caregiverName,omitempty"`
	Status        string            `json:"status"`
	CascadeState  *cascadeStateView `json:"cascadeState,omitempty"`
}

type escalationView struct {
	Outcome         string        `json:"outcome"`
	DeclinedBy      string        `json:"declinedBy,omitempty"`
	NextOfferee     *db.Candidate `json:"nextOfferee,omitempty"`
	NextRespondBy   *time.Time    `json:"nextRespondBy,omitempty"`
	CandidatesTried int           `json:"candidatesTried"`
}

type declineResponse struct {
	Shift      shiftView      `json:"shift"`
	Escalation escalationView `json:"escalation"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetShift returns the current shift record
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	shift, err := h.engine.GetShift(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewShift(shift))
}

// StartCascade begins a cascade with the posted ranked candidate list
func (h *Handler) StartCascade(w http.ResponseWriter, r *http.Request) {
	var req startCascadeRequest
	if !h.decode(w, r, &req) {
		return
	}

	candidates := make([]db.Candidate, len(req.Candidates))
	for i, c := range req.Candidates {
		candidates[i] = db.Candidate{CaregiverID: c.CaregiverID, CaregiverName: c.CaregiverName}
	}

	shift, err := h.engine.StartCascade(r.Context(), r.PathValue("id"), candidates)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewShift(shift))
}

// AcceptOffer confirms the live offer for the calling caregiver
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	var req acceptOfferRequest
	if !h.decode(w, r, &req) {
		return
	}

	shift, err := h.engine.AcceptOffer(r.Context(), r.PathValue("id"), req.CallerCaregiverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewShift(shift))
}

// DeclineOffer records a decline and escalates the cascade
func (h *Handler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	var req declineOfferRequest
	if !h.decode(w, r, &req) {
		return
	}

	shift, result, err := h.engine.DeclineOffer(r.Context(), r.PathValue("id"), req.CallerCaregiverID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, declineResponse{
		Shift:      *viewShift(shift),
		Escalation: viewEscalation(result),
	})
}

// ExpireOffer escalates a lapsed offer; called by the sweeper
func (h *Handler) ExpireOffer(w http.ResponseWriter, r *http.Request) {
	shift, result, err := h.engine.ExpireOffer(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, declineResponse{
		Shift:      *viewShift(shift),
		Escalation: viewEscalation(result),
	})
}

// DeclineAssignment handles the direct-assignment decline flow
func (h *Handler) DeclineAssignment(w http.ResponseWriter, r *http.Request) {
	var req declineOfferRequest
	if !h.decode(w, r, &req) {
		return
	}

	shift, err := h.engine.DeclineAssignment(r.Context(), r.PathValue("id"), req.CallerCaregiverID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewShift(shift))
}

// decode parses and validates a JSON request body, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

// writeError maps business rejections onto status codes the caller can act
// on. A caregiver acting on a stale offer gets an explicit "no longer
// available" message rather than a generic error.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrShiftNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "shift not found"})
	case errors.Is(err, cascade.ErrNotCurrentOfferee):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "this offer is no longer available to you"})
	case errors.Is(err, cascade.ErrShiftNotOffered):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "shift has no open offer"})
	case errors.Is(err, cascade.ErrOfferNotYetExpired):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "offer window has not yet expired"})
	case errors.Is(err, cascade.ErrCascadeAlreadyActive):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "cascade already active for this shift"})
	case errors.Is(err, cascade.ErrShiftNotDeclinable):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "shift cannot be declined in its current status"})
	case errors.Is(err, cascade.ErrEmptyCandidateList):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "ranked candidate list is empty"})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func viewShift(shift *db.Shift) *shiftView {
	v := &shiftView{
		ShiftID:       shift.ID,
		ElderID:       shift.ElderID,
		ElderName:     shift.ElderName,
		GroupID:       shift.GroupID,
		AgencyID:      shift.AgencyID,
		Date:          shift.Date,
		StartTime:     shift.StartTime,
		EndTime:       shift.EndTime,
		CreatedBy:     shift.CreatedBy,
		CaregiverID:   shift.CaregiverID,
		CaregiverName: shift.CaregiverName,
		Status:        string(shift.Status),
	}
	if cs := shift.CascadeState; cs != nil {
		history := make([]offerRecordView, len(cs.OfferHistory))
		for i, rec := range cs.OfferHistory {
			history[i] = offerRecordView{
				CaregiverID: rec.CaregiverID,
				Response:    string(rec.Response),
				RespondedAt: rec.RespondedAt,
				Reason:      rec.Reason,
			}
		}
		v.CascadeState = &cascadeStateView{
			RankedCandidates:      cs.RankedCandidates,
			CurrentOfferIndex:     cs.CurrentOfferIndex,
			CurrentOfferExpiresAt: cs.CurrentOfferExpiresAt,
			OfferHistory:          history,
		}
	}
	return v
}

func viewEscalation(result *cascade.EscalationResult) escalationView {
	return escalationView{
		Outcome:         string(result.Outcome),
		DeclinedBy:      result.DeclinedBy,
		NextOfferee:     result.NextOfferee,
		NextRespondBy:   result.NextRespondBy,
		CandidatesTried: result.CandidatesTried,
	}
}
