package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/pkg/core/cascade"
	"github.com/carebridge/shift-cascade/pkg/db"
)

// memStore is a minimal in-memory ShiftStore backing the engine under test
type memStore struct {
	shifts map[string]*db.Shift
}

func (s *memStore) GetShift(ctx context.Context, shiftID string) (*db.Shift, error) {
	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, db.ErrShiftNotFound
	}
	clone := *shift
	return &clone, nil
}

func (s *memStore) InsertShift(ctx context.Context, shift *db.Shift) error {
	s.shifts[shift.ID] = shift
	return nil
}

func (s *memStore) ApplyShiftTransition(ctx context.Context, shiftID string, fn db.TransitionFunc) (*db.Shift, error) {
	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, db.ErrShiftNotFound
	}
	if err := fn(shift); err != nil {
		return nil, err
	}
	clone := *shift
	return &clone, nil
}

func (s *memStore) ListExpiredOffers(ctx context.Context, now time.Time) ([]db.Shift, error) {
	return nil, nil
}

// noopNotifier satisfies the engine's notifier without side effects
type noopNotifier struct{}

func (noopNotifier) ShiftAvailable(context.Context, *db.Shift, time.Time) {}
func (noopNotifier) ShiftConfirmed(context.Context, *db.Shift)            {}
func (noopNotifier) ShiftUnfilled(context.Context, *db.Shift)             {}
func (noopNotifier) AssignmentDeclined(context.Context, *db.Shift, string, string, string) {
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestHandler(shifts ...*db.Shift) (*Handler, *fixedClock) {
	store := &memStore{shifts: make(map[string]*db.Shift)}
	for _, shift := range shifts {
		store.shifts[shift.ID] = shift
	}
	clock := &fixedClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	engine := cascade.NewEngine(store, noopNotifier{}, clock, cascade.DefaultOfferWindow, zap.NewNop())
	return NewHandler(engine, zap.NewNop()), clock
}

func apiShift() *db.Shift {
	return &db.Shift{
		ID:        "shift-1",
		ElderID:   "elder-1",
		ElderName: "Margaret Hill",
		Date:      "2025-06-09",
		StartTime: "09:00",
		EndTime:   "17:00",
		CreatedBy: "owner-1",
		Status:    db.StatusScheduled,
	}
}

func doRequest(t *testing.T, fn http.HandlerFunc, method, shiftID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/shifts/"+shiftID, strings.NewReader(body))
	req.SetPathValue("id", shiftID)
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

const startCascadeBody = `{"candidates":[
	{"caregiverId":"cg-a","caregiverName":"Alice Adams"},
	{"caregiverId":"cg-b","caregiverName":"Ben Brown"}
]}`

func TestGetShift(t *testing.T) {
	h, _ := newTestHandler(apiShift())

	rec := doRequest(t, h.GetShift, http.MethodGet, "shift-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "shift-1", body["shiftId"])
	assert.Equal(t, "scheduled", body["status"])
	assert.NotContains(t, body, "cascadeState")
}

func TestGetShift_NotFound(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(t, h.GetShift, http.MethodGet, "missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartCascade(t *testing.T) {
	h, _ := newTestHandler(apiShift())

	rec := doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string `json:"status"`
		CaregiverID  string `json:"caregiverId"`
		CascadeState *struct {
			CurrentOfferIndex     int        `json:"currentOfferIndex"`
			CurrentOfferExpiresAt *time.Time `json:"currentOfferExpiresAt"`
			OfferHistory          []struct {
				Response string `json:"response"`
			} `json:"offerHistory"`
		} `json:"cascadeState"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "offered", body.Status)
	assert.Equal(t, "cg-a", body.CaregiverID)
	require.NotNil(t, body.CascadeState)
	assert.Equal(t, 0, body.CascadeState.CurrentOfferIndex)
	assert.NotNil(t, body.CascadeState.CurrentOfferExpiresAt)
	require.Len(t, body.CascadeState.OfferHistory, 1)
	assert.Equal(t, "pending", body.CascadeState.OfferHistory[0].Response)
}

func TestStartCascade_InvalidJSON(t *testing.T) {
	h, _ := newTestHandler(apiShift())

	rec := doRequest(t, h.StartCascade, http.MethodPost, "shift-1", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartCascade_EmptyCandidates(t *testing.T) {
	h, _ := newTestHandler(apiShift())

	rec := doRequest(t, h.StartCascade, http.MethodPost, "shift-1", `{"candidates":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartCascade_AlreadyActive(t *testing.T) {
	h, _ := newTestHandler(apiShift())

	rec := doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAcceptOffer(t *testing.T) {
	h, _ := newTestHandler(apiShift())
	doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)

	rec := doRequest(t, h.AcceptOffer, http.MethodPost, "shift-1", `{"callerCaregiverId":"cg-a"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "cg-a", body["caregiverId"])
}

func TestAcceptOffer_StaleCaller(t *testing.T) {
	h, _ := newTestHandler(apiShift())
	doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)

	rec := doRequest(t, h.AcceptOffer, http.MethodPost, "shift-1", `{"callerCaregiverId":"cg-b"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "this offer is no longer available to you", body["error"])
}

func TestDeclineOffer_ReturnsEscalation(t *testing.T) {
	h, _ := newTestHandler(apiShift())
	doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)

	rec := doRequest(t, h.DeclineOffer, http.MethodPost, "shift-1",
		`{"callerCaregiverId":"cg-a","reason":"family emergency"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Shift struct {
			Status      string `json:"status"`
			CaregiverID string `json:"caregiverId"`
		} `json:"shift"`
		Escalation struct {
			Outcome     string        `json:"outcome"`
			DeclinedBy  string        `json:"declinedBy"`
			NextOfferee *db.Candidate `json:"nextOfferee"`
		} `json:"escalation"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "offered", body.Shift.Status)
	assert.Equal(t, "cg-b", body.Shift.CaregiverID)
	assert.Equal(t, "escalated", body.Escalation.Outcome)
	assert.Equal(t, "cg-a", body.Escalation.DeclinedBy)
	require.NotNil(t, body.Escalation.NextOfferee)
	assert.Equal(t, "cg-b", body.Escalation.NextOfferee.CaregiverID)
}

func TestDeclineOffer_NoOpenOffer(t *testing.T) {
	h, _ := newTestHandler(apiShift())

	rec := doRequest(t, h.DeclineOffer, http.MethodPost, "shift-1", `{"callerCaregiverId":"cg-a"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExpireOffer_BeforeDeadline(t *testing.T) {
	h, _ := newTestHandler(apiShift())
	doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)

	rec := doRequest(t, h.ExpireOffer, http.MethodPost, "shift-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExpireOffer_AfterDeadline(t *testing.T) {
	h, clock := newTestHandler(apiShift())
	doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)

	clock.now = clock.now.Add(cascade.DefaultOfferWindow)
	rec := doRequest(t, h.ExpireOffer, http.MethodPost, "shift-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Escalation struct {
			Outcome string `json:"outcome"`
		} `json:"escalation"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "escalated", body.Escalation.Outcome)
}

func TestDeclineAssignment(t *testing.T) {
	assigned := apiShift()
	assigned.CaregiverID = "cg-a"
	assigned.CaregiverName = "Alice Adams"
	h, _ := newTestHandler(assigned)

	rec := doRequest(t, h.DeclineAssignment, http.MethodPost, "shift-1",
		`{"callerCaregiverId":"cg-a","reason":"double booked"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "declined", body["status"])
	assert.NotContains(t, body, "caregiverId")
}

func TestDeclineAssignment_WrongStatus(t *testing.T) {
	h, _ := newTestHandler(apiShift())
	doRequest(t, h.StartCascade, http.MethodPost, "shift-1", startCascadeBody)

	rec := doRequest(t, h.DeclineAssignment, http.MethodPost, "shift-1", `{"callerCaregiverId":"cg-a"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
