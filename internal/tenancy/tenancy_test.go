package tenancy_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smiledesk/smiledesk/agent-plane/internal/tenancy"
)

type fakeDirectory struct {
	mu     sync.Mutex
	calls  int
	tenant string
	err    error
}

func (f *fakeDirectory) IdentifyTenant(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.tenant, f.err
}

func (f *fakeDirectory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTenantKeyFromRoom(t *testing.T) {
	tests := []struct {
		room    string
		want    string
		wantOK  bool
	}{
		{"westbury-smiledesk-agent-16789", "westbury", true},
		{"test-practice-smiledesk-agent-1", "test-practice", true},
		{"WESTBURY-SMILEDESK-AGENT-42", "westbury", true},
		{"  acme-smiledesk-agent-9\n", "acme", true},
		{"randomroom123", "", false},
		{"", "", false},
		{"-smiledesk-agent-7", "", false},
		{"smiledesk-agent-7", "", false},
		{"test-smiledesk-agent-5", "", false},
		{"room-smiledesk-agent-2", "", false},
		{"prod-smiledesk-agent-11", "", false},
		{"smiledesk-smiledesk-agent-3", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.room, func(t *testing.T) {
			got, ok := tenancy.TenantKeyFromRoom(tt.room)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("TenantKeyFromRoom(%q) = (%q, %v), want (%q, %v)",
					tt.room, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIdentifyRoomWins(t *testing.T) {
	dir := &fakeDirectory{tenant: "phonebook-tenant"}
	id := tenancy.NewIdentifier(dir, "westbury")

	key, source, err := id.Identify(context.Background(), "acme-smiledesk-agent-1", "+447700900123")
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if key != "acme" || source != tenancy.SourceRoom {
		t.Errorf("Identify() = (%q, %q), want (acme, room)", key, source)
	}
	if dir.callCount() != 0 {
		t.Errorf("directory consulted %d times despite a room match", dir.callCount())
	}
}

func TestIdentifyFallsBackToPhone(t *testing.T) {
	dir := &fakeDirectory{tenant: "acme"}
	id := tenancy.NewIdentifier(dir, "westbury")

	key, source, err := id.Identify(context.Background(), "randomroom123", "+447700900123")
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if key != "acme" || source != tenancy.SourcePhone {
		t.Errorf("Identify() = (%q, %q), want (acme, phone)", key, source)
	}
}

func TestIdentifyDirectoryErrorFallsThrough(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("directory unavailable")}
	id := tenancy.NewIdentifier(dir, "westbury")

	key, source, err := id.Identify(context.Background(), "randomroom123", "+447700900123")
	if err != nil {
		t.Fatalf("Identify() error = %v, want fallback to default", err)
	}
	if key != "westbury" || source != tenancy.SourceDefault {
		t.Errorf("Identify() = (%q, %q), want (westbury, default)", key, source)
	}
}

func TestIdentifyDefault(t *testing.T) {
	id := tenancy.NewIdentifier(nil, "westbury")

	key, source, err := id.Identify(context.Background(), "randomroom123", "")
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if key != "westbury" || source != tenancy.SourceDefault {
		t.Errorf("Identify() = (%q, %q), want (westbury, default)", key, source)
	}
}

func TestIdentifyNotIdentifiable(t *testing.T) {
	id := tenancy.NewIdentifier(nil, "")

	_, _, err := id.Identify(context.Background(), "randomroom123", "")
	if !errors.Is(err, tenancy.ErrTenantNotIdentifiable) {
		t.Fatalf("Identify() error = %v, want ErrTenantNotIdentifiable", err)
	}
}

func TestIdentifySkipsDirectoryWithoutPhone(t *testing.T) {
	dir := &fakeDirectory{tenant: "acme"}
	id := tenancy.NewIdentifier(dir, "westbury")

	key, _, err := id.Identify(context.Background(), "randomroom123", "")
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if key != "westbury" {
		t.Errorf("Identify() = %q, want westbury", key)
	}
	if dir.callCount() != 0 {
		t.Errorf("directory consulted %d times with no phone number", dir.callCount())
	}
}

func TestCachingDirectoryCachesHits(t *testing.T) {
	inner := &fakeDirectory{tenant: "acme"}
	dir := tenancy.NewCachingDirectory(inner, time.Minute)
	t.Cleanup(dir.Stop)

	for i := 0; i < 3; i++ {
		key, err := dir.IdentifyTenant(context.Background(), "+447700900123")
		if err != nil {
			t.Fatalf("IdentifyTenant() error = %v", err)
		}
		if key != "acme" {
			t.Fatalf("IdentifyTenant() = %q, want acme", key)
		}
	}
	if inner.callCount() != 1 {
		t.Errorf("inner directory called %d times, want 1", inner.callCount())
	}
}

func TestCachingDirectoryDoesNotCacheFailures(t *testing.T) {
	inner := &fakeDirectory{err: errors.New("boom")}
	dir := tenancy.NewCachingDirectory(inner, time.Minute)
	t.Cleanup(dir.Stop)

	for i := 0; i < 2; i++ {
		if _, err := dir.IdentifyTenant(context.Background(), "+447700900123"); err == nil {
			t.Fatal("IdentifyTenant() error = nil, want lookup failure")
		}
	}
	if inner.callCount() != 2 {
		t.Errorf("inner directory called %d times, want 2 (errors must not be cached)", inner.callCount())
	}
}

func TestCachingDirectoryDoesNotCacheMisses(t *testing.T) {
	inner := &fakeDirectory{tenant: ""}
	dir := tenancy.NewCachingDirectory(inner, time.Minute)
	t.Cleanup(dir.Stop)

	for i := 0; i < 2; i++ {
		key, err := dir.IdentifyTenant(context.Background(), "+447700900999")
		if err != nil {
			t.Fatalf("IdentifyTenant() error = %v", err)
		}
		if key != "" {
			t.Fatalf("IdentifyTenant() = %q, want empty", key)
		}
	}
	if inner.callCount() != 2 {
		t.Errorf("inner directory called %d times, want 2 (unknown numbers must not be cached)", inner.callCount())
	}
}

func TestIsAgentRoom(t *testing.T) {
	tests := []struct {
		room string
		want bool
	}{
		{"westbury-smiledesk-agent-1", true},
		{"SMILEDESK-AGENT-room", true},
		{"randomroom123", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tenancy.IsAgentRoom(tt.room); got != tt.want {
			t.Errorf("IsAgentRoom(%q) = %v, want %v", tt.room, got, tt.want)
		}
	}
}

func TestIsUKMobileNumber(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"+447700900123", true},
		{"+44 7700 900123", true},
		{"+441632960100", false},
		{"07700900123", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tenancy.IsUKMobileNumber(tt.phone); got != tt.want {
			t.Errorf("IsUKMobileNumber(%q) = %v, want %v", tt.phone, got, tt.want)
		}
	}
}
