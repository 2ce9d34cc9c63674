package scheduler

import (
	"testing"
	"time"

	"github.com/mosaaedak/chatrelay/internal/models"
	"github.com/mosaaedak/chatrelay/internal/store"
)

func TestAddJobRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestAddJobAcceptsFiveFieldExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob(SweepSchedule, func() {}); err != nil {
		t.Errorf("sweep schedule rejected: %v", err)
	}
}

func TestStartSessionSweepRegisters(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	st := store.NewInMemoryStore()
	if err := s.StartSessionSweep(st); err != nil {
		t.Fatalf("failed to register session sweep: %v", err)
	}
}

func TestSweepDeletesOnlyExpiredSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	st.UpsertSession("stale", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	st.UpsertSession("fresh", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	st.SetLastAccess("stale", time.Now().UTC().Add(-2*SessionRetention))

	deleted, err := st.DeleteExpiredSessions(SessionRetention)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted session, got %d", deleted)
	}
	if sess, _ := st.GetSession("fresh"); sess == nil {
		t.Error("fresh session was swept")
	}
}
