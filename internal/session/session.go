// Package session holds per-call state: the resolved tenant configuration,
// the patient and booking fields filled in by tool invocations, and the
// call's outcome classification.
//
// A session is owned by exactly one call task and discarded at call end;
// it is never cached or persisted. Cross-call continuity lives in the config
// cache, not here.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// Session is the mutable record for one in-progress call. A single call task
// writes it; the internal mutex exists only so admin snapshots can read a
// live session without tearing.
type Session struct {
	mu sync.Mutex

	sessionID string
	roomName  string
	startedAt time.Time

	config       *models.TenantConfig
	systemPrompt string
	greeting     string

	patientName  string
	patientPhone string
	patientDOB   string
	patientType  models.PatientType
	relationship string

	bookingType      models.BookingType
	consultationType string
	serviceID        string
	slotID           string
	slotDay          string
	slotTiming       string

	doctorID   string
	doctorName string

	outcome OutcomeTracker
}

// New constructs the session for one call from its resolved configuration
// and metadata. A session id is generated unless the metadata carries one;
// the doctor preference starts at the "any provider" sentinel.
func New(cfg *models.TenantConfig, meta models.CallMetadata) *Session {
	sessionID := meta.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Session{
		sessionID:    sessionID,
		roomName:     meta.RoomName,
		startedAt:    time.Now().UTC(),
		config:       cfg,
		systemPrompt: cfg.SystemPrompt,
		greeting:     cfg.GreetingText(),
		patientPhone: meta.Phone,
		doctorID:     models.DoctorAnyProvider,
	}
}

// ── Identity & configuration ─────────────────────────────────

func (s *Session) SessionID() string { return s.sessionID }
func (s *Session) RoomName() string  { return s.roomName }

// TenantKey returns the owning tenant's key.
func (s *Session) TenantKey() string { return s.config.TenantID }

// Config returns the tenant configuration the session was seeded with.
func (s *Session) Config() *models.TenantConfig { return s.config }

// SystemPrompt returns the resolved system prompt for this call.
func (s *Session) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemPrompt
}

// SetSystemPrompt replaces the prompt, e.g. after greeting personalization.
func (s *Session) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	s.systemPrompt = prompt
	s.mu.Unlock()
}

// Greeting returns the line the agent opens the call with: the tenant's
// configured greeting, or the standard fallback built from the organization
// and agent names.
func (s *Session) Greeting() string {
	return s.greeting
}

// RecordingURL derives the public URL of this call's recording.
func (s *Session) RecordingURL() string {
	return s.config.Storage.RecordingURL(s.roomName)
}

// ── Patient fields ───────────────────────────────────────────

func (s *Session) SetPatientName(name string) {
	s.mu.Lock()
	s.patientName = name
	s.mu.Unlock()
}

func (s *Session) PatientName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patientName
}

func (s *Session) SetPatientPhone(phone string) {
	s.mu.Lock()
	s.patientPhone = phone
	s.mu.Unlock()
}

func (s *Session) PatientPhone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patientPhone
}

func (s *Session) SetPatientDOB(dob string) {
	s.mu.Lock()
	s.patientDOB = dob
	s.mu.Unlock()
}

func (s *Session) PatientDOB() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patientDOB
}

func (s *Session) SetPatientType(t models.PatientType) {
	s.mu.Lock()
	s.patientType = t
	s.mu.Unlock()
}

func (s *Session) PatientType() models.PatientType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patientType
}

func (s *Session) SetRelationship(rel string) {
	s.mu.Lock()
	s.relationship = rel
	s.mu.Unlock()
}

func (s *Session) Relationship() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relationship
}

// ── Booking fields ───────────────────────────────────────────

func (s *Session) SetBookingType(t models.BookingType) {
	s.mu.Lock()
	s.bookingType = t
	s.mu.Unlock()
}

func (s *Session) BookingType() models.BookingType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingType
}

// SetConsultationType records the consultation type and resolves its
// bookable service id from the tenant's mapping. Unknown names are rejected;
// eligibility rules (NHS vs private) are the dialogue layer's concern.
func (s *Session) SetConsultationType(name string) error {
	serviceID, ok := s.config.ServiceID(name)
	if !ok {
		return fmt.Errorf("unknown consultation type %q for tenant %s (known: %s)",
			name, s.config.TenantID, strings.Join(s.config.ConsultationNames(), ", "))
	}
	s.mu.Lock()
	s.consultationType = name
	s.serviceID = serviceID
	s.mu.Unlock()
	return nil
}

func (s *Session) ConsultationType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consultationType
}

func (s *Session) ServiceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serviceID
}

// SetSlot records the selected appointment slot.
func (s *Session) SetSlot(id, day, timing string) {
	s.mu.Lock()
	s.slotID, s.slotDay, s.slotTiming = id, day, timing
	s.mu.Unlock()
}

// Slot returns the selected slot id, day, and timing.
func (s *Session) Slot() (id, day, timing string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slotID, s.slotDay, s.slotTiming
}

// ── Doctor preference ────────────────────────────────────────

// SetDoctorPreference records a preferred practitioner, resolving the
// display name from the tenant's doctor map. Unknown ids are rejected.
func (s *Session) SetDoctorPreference(doctorID string) error {
	if doctorID == models.DoctorAnyProvider {
		s.ClearDoctorPreference()
		return nil
	}
	doc, ok := s.config.Doctor(doctorID)
	if !ok {
		return fmt.Errorf("unknown doctor %q for tenant %s (known: %s)",
			doctorID, s.config.TenantID, strings.Join(s.config.DoctorIDs(), ", "))
	}
	s.mu.Lock()
	s.doctorID = doctorID
	s.doctorName = doc.Name
	s.mu.Unlock()
	return nil
}

// ClearDoctorPreference resets the preference to the "any provider" sentinel.
func (s *Session) ClearDoctorPreference() {
	s.mu.Lock()
	s.doctorID = models.DoctorAnyProvider
	s.doctorName = ""
	s.mu.Unlock()
}

// DoctorPreference returns the preferred doctor's id and display name. The
// id is models.DoctorAnyProvider when no preference is set.
func (s *Session) DoctorPreference() (id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doctorID, s.doctorName
}

// ── Outcome ──────────────────────────────────────────────────

// SetOutcome records the call's terminal classification. Invalid values are
// ignored and logged, never surfaced as failures.
func (s *Session) SetOutcome(v models.OutcomeState) {
	s.mu.Lock()
	s.outcome.Set(v)
	s.mu.Unlock()
}

// Outcome returns the current outcome classification.
func (s *Session) Outcome() models.OutcomeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome.Value()
}

// ── Reporting ────────────────────────────────────────────────

// Snapshot returns an immutable view of the session for admin listing and
// end-of-call reporting.
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionSnapshot{
		SessionID:        s.sessionID,
		RoomName:         s.roomName,
		TenantKey:        s.config.TenantID,
		PatientName:      s.patientName,
		ConsultationType: s.consultationType,
		DoctorPreference: s.doctorID,
		Outcome:          s.outcome.Value(),
		StartedAt:        s.startedAt,
	}
}

// Report builds the end-of-call report posted to the platform backend.
func (s *Session) Report() models.CallReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CallReport{
		ID:           uuid.NewString(),
		TenantKey:    s.config.TenantID,
		RoomName:     s.roomName,
		SessionID:    s.sessionID,
		Outcome:      s.outcome.Value(),
		PatientName:  s.patientName,
		RecordingURL: s.config.Storage.RecordingURL(s.roomName),
		EndedAt:      time.Now().UTC(),
	}
}
