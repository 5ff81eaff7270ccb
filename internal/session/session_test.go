package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiledesk/smiledesk/agent-plane/internal/session"
	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

func tenantConfig() *models.TenantConfig {
	return &models.TenantConfig{
		TenantID:     "westbury",
		Customer:     models.CustomerInfo{Name: "Westbury Dental", Phone: "+441632960100"},
		SystemPrompt: "You are the receptionist for Westbury Dental.",
		Consultations: map[string]string{
			"general_consultation":     "svc-100",
			"orthodontic_consultation": "svc-200",
		},
		Doctors: map[string]models.Doctor{
			"doc-1": {Name: "Dr Patel"},
			"doc-2": {Name: "Dr Jones", Consultations: []string{"orthodontic_consultation"}},
		},
		Storage: models.StorageConfig{Container: "dental", Folder: "westbury"},
	}
}

func newSession() *session.Session {
	return session.New(tenantConfig(), models.CallMetadata{
		RoomName: "westbury-smiledesk-agent-16789",
		Phone:    "+447700900123",
	})
}

func TestNewSession(t *testing.T) {
	s := newSession()

	assert.NotEmpty(t, s.SessionID())
	assert.Equal(t, "westbury-smiledesk-agent-16789", s.RoomName())
	assert.Equal(t, "westbury", s.TenantKey())
	assert.Equal(t, "You are the receptionist for Westbury Dental.", s.SystemPrompt())
	assert.Equal(t, "+447700900123", s.PatientPhone())
	assert.Equal(t, models.OutcomeUnset, s.Outcome())

	id, name := s.DoctorPreference()
	assert.Equal(t, models.DoctorAnyProvider, id)
	assert.Empty(t, name)
}

func TestSessionIDsAreUnique(t *testing.T) {
	assert.NotEqual(t, newSession().SessionID(), newSession().SessionID())
}

func TestSuppliedSessionIDKept(t *testing.T) {
	s := session.New(tenantConfig(), models.CallMetadata{
		RoomName:  "westbury-smiledesk-agent-16789",
		SessionID: "transport-call-42",
	})
	assert.Equal(t, "transport-call-42", s.SessionID())
}

func TestGreetingFallsBackWhenUnconfigured(t *testing.T) {
	assert.Equal(t,
		"Hi, this is Westbury Dental, I'm Emma, how can I help you?",
		newSession().Greeting())

	cfg := tenantConfig()
	cfg.Greeting = "Welcome to Westbury, how can we help?"
	s := session.New(cfg, models.CallMetadata{RoomName: "westbury-smiledesk-agent-1"})
	assert.Equal(t, "Welcome to Westbury, how can we help?", s.Greeting())
}

func TestPatientSetters(t *testing.T) {
	s := newSession()
	s.SetPatientName("Alice Smith")
	s.SetPatientPhone("+447700900456")
	s.SetPatientDOB("1990-04-12")
	s.SetPatientType(models.PatientExisting)
	s.SetRelationship("self")

	assert.Equal(t, "Alice Smith", s.PatientName())
	assert.Equal(t, "+447700900456", s.PatientPhone())
	assert.Equal(t, "1990-04-12", s.PatientDOB())
	assert.Equal(t, models.PatientExisting, s.PatientType())
	assert.Equal(t, "self", s.Relationship())
}

func TestSetConsultationTypeResolvesServiceID(t *testing.T) {
	s := newSession()

	require.NoError(t, s.SetConsultationType("orthodontic_consultation"))
	assert.Equal(t, "orthodontic_consultation", s.ConsultationType())
	assert.Equal(t, "svc-200", s.ServiceID())
}

func TestSetConsultationTypeUnknown(t *testing.T) {
	s := newSession()

	err := s.SetConsultationType("astrology_consultation")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "general_consultation, orthodontic_consultation",
		"the error should list what the tenant does offer")
	assert.Empty(t, s.ConsultationType(), "a rejected setter must not partially apply")
	assert.Empty(t, s.ServiceID())
}

func TestSetDoctorPreference(t *testing.T) {
	s := newSession()

	require.NoError(t, s.SetDoctorPreference("doc-1"))
	id, name := s.DoctorPreference()
	assert.Equal(t, "doc-1", id)
	assert.Equal(t, "Dr Patel", name)

	s.ClearDoctorPreference()
	id, name = s.DoctorPreference()
	assert.Equal(t, models.DoctorAnyProvider, id)
	assert.Empty(t, name)
}

func TestSetDoctorPreferenceUnknown(t *testing.T) {
	s := newSession()

	err := s.SetDoctorPreference("doc-99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doc-1, doc-2")
	id, _ := s.DoctorPreference()
	assert.Equal(t, models.DoctorAnyProvider, id)
}

func TestSetDoctorPreferenceAnyProvider(t *testing.T) {
	s := newSession()
	require.NoError(t, s.SetDoctorPreference("doc-1"))

	require.NoError(t, s.SetDoctorPreference(models.DoctorAnyProvider))
	id, _ := s.DoctorPreference()
	assert.Equal(t, models.DoctorAnyProvider, id)
}

func TestSlot(t *testing.T) {
	s := newSession()
	s.SetSlot("slot-7", "2026-09-03", "10:30")

	id, day, timing := s.Slot()
	assert.Equal(t, "slot-7", id)
	assert.Equal(t, "2026-09-03", day)
	assert.Equal(t, "10:30", timing)
}

func TestOutcomeLastWriteWins(t *testing.T) {
	s := newSession()

	s.SetOutcome(models.OutcomeNoSlots)
	assert.Equal(t, models.OutcomeNoSlots, s.Outcome())

	s.SetOutcome(models.OutcomeBooked)
	assert.Equal(t, models.OutcomeBooked, s.Outcome())

	// Even "backwards" transitions are allowed.
	s.SetOutcome(models.OutcomeCallbackRequested)
	assert.Equal(t, models.OutcomeCallbackRequested, s.Outcome())
}

func TestInvalidOutcomeIgnored(t *testing.T) {
	s := newSession()
	s.SetOutcome(models.OutcomeBooked)

	s.SetOutcome(models.OutcomeState("abducted_by_aliens"))
	assert.Equal(t, models.OutcomeBooked, s.Outcome(), "invalid outcome must preserve the previous value")
}

func TestRecordingURL(t *testing.T) {
	s := newSession()
	assert.Equal(t,
		"https://oaipublic.blob.core.windows.net/dental/westbury/westbury-smiledesk-agent-16789.ogg",
		s.RecordingURL())
}

func TestSnapshot(t *testing.T) {
	s := newSession()
	s.SetPatientName("Alice Smith")
	require.NoError(t, s.SetConsultationType("general_consultation"))
	s.SetOutcome(models.OutcomeEnquiryOnly)

	snap := s.Snapshot()
	assert.Equal(t, s.SessionID(), snap.SessionID)
	assert.Equal(t, "westbury", snap.TenantKey)
	assert.Equal(t, "Alice Smith", snap.PatientName)
	assert.Equal(t, "general_consultation", snap.ConsultationType)
	assert.Equal(t, models.DoctorAnyProvider, snap.DoctorPreference)
	assert.Equal(t, models.OutcomeEnquiryOnly, snap.Outcome)
	assert.False(t, snap.StartedAt.IsZero())
}

func TestReport(t *testing.T) {
	s := newSession()
	s.SetPatientName("Alice Smith")
	s.SetOutcome(models.OutcomeBooked)

	report := s.Report()
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "westbury", report.TenantKey)
	assert.Equal(t, s.SessionID(), report.SessionID)
	assert.Equal(t, models.OutcomeBooked, report.Outcome)
	assert.Equal(t, s.RecordingURL(), report.RecordingURL)
	assert.False(t, report.EndedAt.IsZero())
}
