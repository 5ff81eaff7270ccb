package session_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiledesk/smiledesk/agent-plane/internal/session"
	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

func TestRegistryAddRemove(t *testing.T) {
	reg := session.NewRegistry()
	s := newSession()

	reg.Add(s)
	assert.Equal(t, 1, reg.Count())

	got, ok := reg.Get(s.SessionID())
	require.True(t, ok)
	assert.Same(t, s, got)

	reg.Remove(s.SessionID())
	assert.Equal(t, 0, reg.Count())
	_, ok = reg.Get(s.SessionID())
	assert.False(t, ok)

	// Removing twice is harmless.
	reg.Remove(s.SessionID())
}

func TestRegistrySnapshots(t *testing.T) {
	reg := session.NewRegistry()
	first := newSession()
	second := newSession()
	reg.Add(first)
	reg.Add(second)

	first.SetPatientName("Alice Smith")
	second.SetOutcome(models.OutcomeTransferred)

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)

	byID := map[string]models.SessionSnapshot{}
	for _, snap := range snaps {
		byID[snap.SessionID] = snap
	}
	assert.Equal(t, "Alice Smith", byID[first.SessionID()].PatientName)
	assert.Equal(t, models.OutcomeTransferred, byID[second.SessionID()].Outcome)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := session.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := session.New(tenantConfig(), models.CallMetadata{
				RoomName: fmt.Sprintf("westbury-smiledesk-agent-%d", i),
			})
			reg.Add(s)
			s.SetPatientName("caller")
			reg.Snapshots()
			if i%2 == 0 {
				reg.Remove(s.SessionID())
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, reg.Count())
}
