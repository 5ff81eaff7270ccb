// Package models defines the shared data model for the SmileDesk agent plane:
// tenant configuration snapshots fetched from the platform backend, resolved
// voice parameters, call metadata, and call-outcome reporting shapes.
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ── Defaults ─────────────────────────────────────────────────

// DefaultAgentName is used when a tenant does not configure one.
const DefaultAgentName = "Emma"

// DefaultOrganizationName is the generic display name used when a tenant's
// customer block is missing a name (fallback/generic experience only).
const DefaultOrganizationName = "Dental Practice"

// DefaultStorageBaseURL is the public blob endpoint recordings are served from.
const DefaultStorageBaseURL = "https://oaipublic.blob.core.windows.net"

// DefaultStorageContainer holds call recordings unless the tenant overrides it.
const DefaultStorageContainer = "dental"

// DoctorAnyProvider is the doctor-preference sentinel meaning "no preference".
const DoctorAnyProvider = "ANY-PROVIDER"

// ── Tenant configuration ─────────────────────────────────────

// TenantConfig is the immutable per-tenant configuration snapshot returned by
// the platform backend. The resolver validates it before caching; a snapshot
// missing any required field is rejected whole, never partially cached.
type TenantConfig struct {
	TenantID      string              `json:"tenant_id"`
	Customer      CustomerInfo        `json:"customer"`
	SystemPrompt  string              `json:"system_prompt"`
	Greeting      string              `json:"greeting,omitempty"`
	AgentName     string              `json:"agent_name,omitempty"`
	Consultations map[string]string   `json:"consultation_types"` // name → bookable service id
	Doctors       map[string]Doctor   `json:"doctors"`            // doctor id → info
	Storage       StorageConfig       `json:"storage"`
	Voice         *VoiceConfig        `json:"voice,omitempty"`
	KeywordBoost  []string            `json:"keyword_boost,omitempty"`
	Notifications *NotificationConfig `json:"notifications,omitempty"`
	Features      map[string]bool     `json:"features,omitempty"`
	FetchedAt     time.Time           `json:"-"`
}

// CustomerInfo is the practice's display and contact information.
type CustomerInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

// Doctor describes one practitioner at the practice.
type Doctor struct {
	Name          string   `json:"name"`
	Specialties   []string `json:"specialties,omitempty"`
	Consultations []string `json:"consultation_types,omitempty"`
}

// StorageConfig locates a tenant's call recordings in blob storage.
type StorageConfig struct {
	Container string `json:"container"`
	Folder    string `json:"folder"`
	BaseURL   string `json:"base_url,omitempty"`
}

// NotificationConfig configures end-of-call summary delivery.
// An empty Events list means "all events".
type NotificationConfig struct {
	WebhookURL string   `json:"webhook_url"`
	Events     []string `json:"events,omitempty"`
}

// Subscribes reports whether the tenant wants the given event delivered.
func (n *NotificationConfig) Subscribes(event string) bool {
	if n == nil || n.WebhookURL == "" {
		return false
	}
	if len(n.Events) == 0 {
		return true
	}
	for _, e := range n.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Validate checks the required-field invariant and returns every problem
// found, not just the first. An empty slice means the snapshot is usable.
func (c *TenantConfig) Validate() []string {
	var problems []string

	if strings.TrimSpace(c.TenantID) == "" {
		problems = append(problems, "tenant_id is missing or empty")
	} else {
		if strings.Contains(c.TenantID, " ") {
			problems = append(problems, "tenant_id must not contain spaces")
		}
		if c.TenantID != strings.ToLower(c.TenantID) {
			problems = append(problems, "tenant_id must be lowercase")
		}
	}

	if strings.TrimSpace(c.Customer.Name) == "" {
		problems = append(problems, "customer.name is missing or empty")
	}
	if strings.TrimSpace(c.Customer.Phone) == "" {
		problems = append(problems, "customer.phone is missing or empty")
	}

	if strings.TrimSpace(c.SystemPrompt) == "" {
		problems = append(problems, "system_prompt is missing or empty")
	}

	if len(c.Consultations) == 0 {
		problems = append(problems, "consultation_types must not be empty")
	}
	for name, serviceID := range c.Consultations {
		if strings.TrimSpace(serviceID) == "" {
			problems = append(problems, fmt.Sprintf("consultation_types[%q] has an empty service id", name))
		}
	}

	if len(c.Doctors) == 0 {
		problems = append(problems, "doctors must not be empty")
	}
	for id, doc := range c.Doctors {
		if strings.TrimSpace(doc.Name) == "" {
			problems = append(problems, fmt.Sprintf("doctors[%q] is missing a name", id))
		}
	}

	if strings.TrimSpace(c.Storage.Container) == "" {
		problems = append(problems, "storage.container is missing or empty")
	}
	if strings.TrimSpace(c.Storage.Folder) == "" {
		problems = append(problems, "storage.folder is missing or empty")
	}

	return problems
}

// OrganizationName returns the practice display name, or the generic default.
func (c *TenantConfig) OrganizationName() string {
	if strings.TrimSpace(c.Customer.Name) != "" {
		return c.Customer.Name
	}
	return DefaultOrganizationName
}

// AgentDisplayName returns the configured agent persona name, or the default.
func (c *TenantConfig) AgentDisplayName() string {
	if strings.TrimSpace(c.AgentName) != "" {
		return c.AgentName
	}
	return DefaultAgentName
}

// GreetingText returns the tenant greeting as configured, or derives the
// standard fallback greeting from the organization and agent names.
func (c *TenantConfig) GreetingText() string {
	if strings.TrimSpace(c.Greeting) != "" {
		return c.Greeting
	}
	return fmt.Sprintf("Hi, this is %s, I'm %s, how can I help you?",
		c.OrganizationName(), c.AgentDisplayName())
}

// ServiceID resolves a consultation type name to its bookable service id.
func (c *TenantConfig) ServiceID(consultationType string) (string, bool) {
	id, ok := c.Consultations[consultationType]
	return id, ok
}

// ConsultationNames returns the tenant's consultation type names, sorted.
func (c *TenantConfig) ConsultationNames() []string {
	names := make([]string, 0, len(c.Consultations))
	for name := range c.Consultations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Doctor looks up a practitioner by id.
func (c *TenantConfig) Doctor(id string) (Doctor, bool) {
	d, ok := c.Doctors[id]
	return d, ok
}

// DoctorIDs returns all practitioner ids, sorted.
func (c *TenantConfig) DoctorIDs() []string {
	ids := make([]string, 0, len(c.Doctors))
	for id := range c.Doctors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Feature reports whether a named feature flag is enabled for the tenant.
func (c *TenantConfig) Feature(name string) bool {
	return c.Features[name]
}

// RecordingURL derives the public URL of a call's recording.
// Shape: {base}/{container}/{folder}/{room}.ogg
func (s StorageConfig) RecordingURL(roomName string) string {
	base := s.BaseURL
	if base == "" {
		base = DefaultStorageBaseURL
	}
	container := s.Container
	if container == "" {
		container = DefaultStorageContainer
	}
	return fmt.Sprintf("%s/%s/%s/%s.ogg",
		strings.TrimRight(base, "/"), container, strings.Trim(s.Folder, "/"), roomName)
}

// ── Voice configuration ──────────────────────────────────────

// VoiceConfig is the tenant's raw voice block as delivered by the backend.
// Every field is optional; absent fields fall back to the documented
// baseline during resolution. Numeric settings are pointers so that an
// explicit zero can be told apart from "not set".
type VoiceConfig struct {
	VoiceID  string         `json:"voice_id,omitempty"`
	Model    string         `json:"model,omitempty"`
	Settings *VoiceSettings `json:"settings,omitempty"`
}

// VoiceSettings are the tunable TTS synthesis knobs.
type VoiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
}

// VoiceParameters is the fully resolved TTS parameter set handed to the
// speech pipeline: every field carries a concrete value after the
// baseline merge.
type VoiceParameters struct {
	VoiceID         string  `json:"voice_id"`
	Model           string  `json:"model"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// ── Call outcome ─────────────────────────────────────────────

// OutcomeState is the terminal classification of a call. Exactly one value
// is current at any time; writes overwrite, they never accumulate.
type OutcomeState string

const (
	OutcomeUnset             OutcomeState = "unset"
	OutcomeBooked            OutcomeState = "booked"
	OutcomeCallbackRequested OutcomeState = "callback_requested"
	OutcomeNoSlots           OutcomeState = "no_slots"
	OutcomeEnquiryOnly       OutcomeState = "enquiry_only"
	OutcomeTransferred       OutcomeState = "transferred"
	OutcomeUserHungUp        OutcomeState = "user_hung_up"
)

// Outcomes lists every valid outcome value, OutcomeUnset first.
func Outcomes() []OutcomeState {
	return []OutcomeState{
		OutcomeUnset,
		OutcomeBooked,
		OutcomeCallbackRequested,
		OutcomeNoSlots,
		OutcomeEnquiryOnly,
		OutcomeTransferred,
		OutcomeUserHungUp,
	}
}

// IsValid reports whether the value is a member of the outcome enum.
func (o OutcomeState) IsValid() bool {
	for _, known := range Outcomes() {
		if o == known {
			return true
		}
	}
	return false
}

// ── Booking enums ────────────────────────────────────────────

// BookingType distinguishes private from NHS bookings.
type BookingType string

const (
	BookingPrivate BookingType = "private"
	BookingNHS     BookingType = "nhs"
)

// PatientType distinguishes new callers from existing patients.
type PatientType string

const (
	PatientNew      PatientType = "new"
	PatientExisting PatientType = "existing"
)

// ── Call metadata & reporting ────────────────────────────────

// CallMetadata is what the transport layer knows about an incoming call
// before any configuration is resolved.
type CallMetadata struct {
	RoomName string `json:"room_name"`
	Phone    string `json:"phone,omitempty"`
	// SessionID lets the transport layer carry its own call id through;
	// a fresh UUID is generated when empty.
	SessionID string `json:"session_id,omitempty"`
}

// CallReport is the end-of-call summary posted to the platform backend.
type CallReport struct {
	ID           string       `json:"id"`
	TenantKey    string       `json:"tenant_key"`
	RoomName     string       `json:"room_name"`
	SessionID    string       `json:"session_id"`
	Outcome      OutcomeState `json:"outcome"`
	PatientName  string       `json:"patient_name,omitempty"`
	RecordingURL string       `json:"recording_url,omitempty"`
	EndedAt      time.Time    `json:"ended_at"`
}

// SessionSnapshot is a read-only view of a live call session, exposed on the
// admin API. It carries no reference back to the mutable session state.
type SessionSnapshot struct {
	SessionID        string       `json:"session_id"`
	RoomName         string       `json:"room_name"`
	TenantKey        string       `json:"tenant_key"`
	PatientName      string       `json:"patient_name,omitempty"`
	ConsultationType string       `json:"consultation_type,omitempty"`
	DoctorPreference string       `json:"doctor_preference"`
	Outcome          OutcomeState `json:"outcome"`
	StartedAt        time.Time    `json:"started_at"`
}
