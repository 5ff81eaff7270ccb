// Package tenancy derives tenant keys from call metadata. Rooms named by the
// platform convention {tenantKey}-smiledesk-agent-{suffix} identify their
// tenant directly; anything else falls back to a phone-directory lookup and
// finally to the configured default tenant.
package tenancy

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// roomSegment is the fixed literal between the tenant key and the per-call
// suffix in platform room names.
const roomSegment = "-smiledesk-agent-"

// ErrTenantNotIdentifiable is returned when neither the room name nor the
// phone number yields a tenant and no default tenant is configured. Callers
// degrade to a generic, non-personalized experience; the call itself goes on.
var ErrTenantNotIdentifiable = errors.New("tenant not identifiable from call metadata")

// genericKeys are room-name prefixes that name environments or placeholders
// rather than tenants; a parse that lands on one does not count as a match.
var genericKeys = map[string]struct{}{
	"room":      {},
	"call":      {},
	"test":      {},
	"dev":       {},
	"prod":      {},
	"smiledesk": {},
}

// Source says which rule produced a tenant key.
type Source string

const (
	SourceRoom    Source = "room"
	SourcePhone   Source = "phone"
	SourceDefault Source = "default"
)

// PhoneDirectory resolves a caller's phone number to a tenant key.
// Implementations return ("", nil) when the number is simply unknown;
// errors mean the lookup itself failed.
type PhoneDirectory interface {
	IdentifyTenant(ctx context.Context, phone string) (string, error)
}

// Identifier applies the room → phone → default resolution order.
type Identifier struct {
	directory     PhoneDirectory // nil disables phone lookup
	defaultTenant string         // empty disables the fallback
}

// NewIdentifier builds an Identifier. Either collaborator may be absent.
func NewIdentifier(directory PhoneDirectory, defaultTenant string) *Identifier {
	return &Identifier{directory: directory, defaultTenant: defaultTenant}
}

// Identify derives the tenant key for a call. Directory errors are logged and
// treated as "no phone match"; the default tenant still applies. Only when
// every rule comes up empty does it return ErrTenantNotIdentifiable.
func (i *Identifier) Identify(ctx context.Context, roomName, phone string) (string, Source, error) {
	if key, ok := TenantKeyFromRoom(roomName); ok {
		return key, SourceRoom, nil
	}

	if i.directory != nil && phone != "" {
		key, err := i.directory.IdentifyTenant(ctx, phone)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("room", roomName).Msg("Phone directory lookup failed")
		case key != "":
			return key, SourcePhone, nil
		}
	}

	if i.defaultTenant != "" {
		log.Debug().
			Str("room", roomName).
			Str("tenant", i.defaultTenant).
			Msg("Falling back to default tenant")
		return i.defaultTenant, SourceDefault, nil
	}

	return "", "", ErrTenantNotIdentifiable
}

// TenantKeyFromRoom extracts the tenant key from a platform room name.
// The key is everything before the last "-smiledesk-agent-" so hyphenated
// tenant keys survive. Empty and generic keys do not count as matches.
func TenantKeyFromRoom(roomName string) (string, bool) {
	room := strings.ToLower(strings.TrimSpace(roomName))
	idx := strings.LastIndex(room, roomSegment)
	if idx <= 0 {
		return "", false
	}
	key := room[:idx]
	if _, generic := genericKeys[key]; generic {
		return "", false
	}
	return key, true
}

// IsAgentRoom reports whether a room name follows the platform convention at
// all. Call workers use it to accept or reject dispatch requests before any
// tenant resolution happens.
func IsAgentRoom(roomName string) bool {
	return strings.Contains(strings.ToLower(roomName), "smiledesk-agent")
}

// IsUKMobileNumber reports whether the number is a UK mobile (+447…).
// Upstream uses this to decide whether an existing-patient lookup is worth
// attempting.
func IsUKMobileNumber(phone string) bool {
	p := strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	return strings.HasPrefix(p, "+447")
}
