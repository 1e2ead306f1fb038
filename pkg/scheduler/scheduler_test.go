package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/notify"
	"p9e.in/farmops/pkg/realtime"
	"p9e.in/farmops/pkg/testutil"
)

type notifyCall struct {
	farmID uuid.UUID
	roles  []models.Role
	msg    models.NotificationMessage
}

type fakeNotifier struct {
	mu      sync.Mutex
	calls   []notifyCall
	failFor map[uuid.UUID]error
	panicOn map[uuid.UUID]bool
}

func (f *fakeNotifier) NotifyFarmRoles(ctx context.Context, farmID uuid.UUID, roles []models.Role, msg models.NotificationMessage) (int, error) {
	if f.panicOn[farmID] {
		panic("boom")
	}
	if err := f.failFor[farmID]; err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{farmID: farmID, roles: roles, msg: msg})
	return len(roles), nil
}

func at(h, m int) *testutil.Clock {
	return &testutil.Clock{T: time.Date(2025, 6, 1, h, m, 0, 0, time.UTC)}
}

func newScheduler(t *testing.T, n Notifier, clock *testutil.Clock, dedup bool) *DeadlineScheduler {
	db := testutil.OpenTestDB(t)
	return NewDeadlineScheduler(db, n, zap.NewNop(), Options{Location: time.UTC, Dedup: dedup, Now: clock.Now})
}

func TestTick_Windows(t *testing.T) {
	tests := []struct {
		name        string
		clock       *testutil.Clock
		expectCalls int
		expectKind  models.NotificationType
	}{
		{"50 minutes before", at(16, 10), 1, models.NotificationTypeDeadlineReminder},
		{"60 minutes before", at(16, 0), 1, models.NotificationTypeDeadlineReminder},
		{"61 minutes before", at(15, 59), 0, ""},
		{"10 minutes after", at(17, 10), 1, models.NotificationTypeDeadlineMissed},
		{"20 minutes after", at(17, 20), 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{}
			s := newScheduler(t, n, tt.clock, false)
			farm := testutil.CreateFarm(t, s.db, "Sunrise")
			testutil.CreateConfig(t, s.db, farm, true, 17, 0)

			sum, err := s.Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if sum.Checked != 1 {
				t.Errorf("expected 1 config checked, got %d", sum.Checked)
			}
			if len(n.calls) != tt.expectCalls {
				t.Fatalf("expected %d notifications, got %d", tt.expectCalls, len(n.calls))
			}
			if tt.expectCalls == 0 {
				return
			}
			call := n.calls[0]
			if call.farmID != farm.ID {
				t.Errorf("notified wrong farm")
			}
			if call.msg.Data == nil || call.msg.Data.Type != tt.expectKind {
				t.Errorf("expected data type %s, got %+v", tt.expectKind, call.msg.Data)
			}
		})
	}
}

func TestTick_Messages(t *testing.T) {
	n := &fakeNotifier{}
	clock := at(16, 10)
	s := newScheduler(t, n, clock, false)
	farm := testutil.CreateFarm(t, s.db, "Sunrise")
	cfg := testutil.CreateConfig(t, s.db, farm, true, 17, 0)

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	clock.T = time.Date(2025, 6, 1, 17, 10, 0, 0, time.UTC)
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(n.calls) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(n.calls))
	}

	reminder := n.calls[0].msg
	if reminder.Message != "Reminder: Daily Report is due soon (17:00:00)." {
		t.Errorf("unexpected reminder text %q", reminder.Message)
	}
	if reminder.Data.ConfigID != cfg.ID.String() {
		t.Errorf("expected config id in reminder data")
	}

	alert := n.calls[1].msg
	if alert.Message != "Alert: Daily Report deadline passed for Sunrise." {
		t.Errorf("unexpected alert text %q", alert.Message)
	}
}

func TestTick_DisabledConfigNeverFires(t *testing.T) {
	n := &fakeNotifier{}
	s := newScheduler(t, n, at(16, 30), false)
	farm := testutil.CreateFarm(t, s.db, "Sunrise")
	testutil.CreateConfig(t, s.db, farm, false, 17, 0)

	noDeadline := testutil.CreateFarm(t, s.db, "Moonrise")
	if err := s.db.Create(&models.ReportConfig{FarmID: noDeadline.ID, IsEnabled: true}).Error; err != nil {
		t.Fatalf("create config: %v", err)
	}

	sum, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sum.Checked != 0 || len(n.calls) != 0 {
		t.Errorf("expected nothing to be checked, got %+v and %d calls", sum, len(n.calls))
	}
}

func TestTick_FailingFarmIsIsolated(t *testing.T) {
	n := &fakeNotifier{failFor: map[uuid.UUID]error{}, panicOn: map[uuid.UUID]bool{}}
	s := newScheduler(t, n, at(16, 30), false)

	broken := testutil.CreateFarm(t, s.db, "Broken")
	testutil.CreateConfig(t, s.db, broken, true, 17, 0)
	panicky := testutil.CreateFarm(t, s.db, "Panicky")
	testutil.CreateConfig(t, s.db, panicky, true, 17, 0)
	healthy := testutil.CreateFarm(t, s.db, "Healthy")
	testutil.CreateConfig(t, s.db, healthy, true, 17, 0)

	n.failFor[broken.ID] = errors.New("database unavailable")
	n.panicOn[panicky.ID] = true

	sum, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sum.Checked != 3 || sum.Failed != 2 || sum.DueSoon != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(n.calls) != 1 || n.calls[0].farmID != healthy.ID {
		t.Errorf("expected only the healthy farm to be notified, got %+v", n.calls)
	}
}

func TestTick_Dedup(t *testing.T) {
	tests := []struct {
		dedup       bool
		expectCalls int
	}{
		{false, 2},
		{true, 1},
	}

	for _, tt := range tests {
		name := "without dedup"
		if tt.dedup {
			name = "with dedup"
		}
		t.Run(name, func(t *testing.T) {
			n := &fakeNotifier{}
			clock := at(16, 10)
			s := newScheduler(t, n, clock, tt.dedup)
			farm := testutil.CreateFarm(t, s.db, "Sunrise")
			testutil.CreateConfig(t, s.db, farm, true, 17, 0)

			s.Tick(context.Background())
			clock.T = clock.T.Add(time.Minute)
			sum, err := s.Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if len(n.calls) != tt.expectCalls {
				t.Errorf("expected %d notifications, got %d", tt.expectCalls, len(n.calls))
			}
			if tt.dedup && sum.Skipped != 1 {
				t.Errorf("expected second tick to be skipped, got %+v", sum)
			}
		})
	}
}

func TestTick_DedupRetriesAfterFailedNotify(t *testing.T) {
	tests := []struct {
		name          string
		breakNotifier func(n *fakeNotifier, farmID uuid.UUID)
	}{
		{"error", func(n *fakeNotifier, farmID uuid.UUID) { n.failFor[farmID] = errors.New("connection reset") }},
		{"panic", func(n *fakeNotifier, farmID uuid.UUID) { n.panicOn[farmID] = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{failFor: map[uuid.UUID]error{}, panicOn: map[uuid.UUID]bool{}}
			clock := at(16, 10)
			s := newScheduler(t, n, clock, true)
			farm := testutil.CreateFarm(t, s.db, "Sunrise")
			testutil.CreateConfig(t, s.db, farm, true, 17, 0)

			tt.breakNotifier(n, farm.ID)
			sum, err := s.Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if sum.Failed != 1 {
				t.Fatalf("expected first tick to fail, got %+v", sum)
			}

			var marks int64
			s.db.Model(&models.ReminderMark{}).Count(&marks)
			if marks != 0 {
				t.Errorf("expected no reminder mark after a failed notify, got %d", marks)
			}

			delete(n.failFor, farm.ID)
			delete(n.panicOn, farm.ID)
			clock.T = clock.T.Add(time.Minute)
			sum, err = s.Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if sum.DueSoon != 1 || sum.Skipped != 0 {
				t.Errorf("expected the reminder to be retried, got %+v", sum)
			}
			if len(n.calls) != 1 {
				t.Errorf("expected 1 delivered reminder, got %d", len(n.calls))
			}

			clock.T = clock.T.Add(time.Minute)
			sum, _ = s.Tick(context.Background())
			if sum.Skipped != 1 || len(n.calls) != 1 {
				t.Errorf("expected the delivered reminder to be deduplicated, got %+v and %d calls", sum, len(n.calls))
			}
		})
	}
}

type recordingDeliverer struct {
	mu         sync.Mutex
	recipients []uuid.UUID
}

func (r *recordingDeliverer) Deliver(ctx context.Context, ids []uuid.UUID, ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipients = append(r.recipients, ids...)
}

func TestTick_OverdueReachesManagersOnly(t *testing.T) {
	db := testutil.OpenTestDB(t)
	farm := testutil.CreateFarm(t, db, "Sunrise")
	testutil.CreateConfig(t, db, farm, true, 17, 0)

	users := map[uuid.UUID]string{}
	for _, u := range []struct {
		name string
		role models.Role
	}{
		{"alice", models.RoleStaff},
		{"bob", models.RoleManager},
		{"carol", models.RoleSuperuser},
		{"dave", models.RoleFinancialManager},
	} {
		users[testutil.CreateUser(t, db, farm, u.name, u.role).ID] = u.name
	}

	tests := []struct {
		name   string
		clock  *testutil.Clock
		expect []string
	}{
		{"due soon", at(16, 10), []string{"alice", "bob", "carol"}},
		{"overdue", at(17, 10), []string{"bob", "carol"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDeliverer{}
			svc := notify.NewNotificationService(db, d, zap.NewNop())
			s := NewDeadlineScheduler(db, svc, zap.NewNop(), Options{Location: time.UTC, Now: tt.clock.Now})

			if _, err := s.Tick(context.Background()); err != nil {
				t.Fatalf("Tick: %v", err)
			}

			var got []string
			for _, id := range d.recipients {
				got = append(got, users[id])
			}
			sort.Strings(got)
			if strings.Join(got, ",") != strings.Join(tt.expect, ",") {
				t.Errorf("expected recipients %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestNewRunner_RejectsBadSpec(t *testing.T) {
	s := NewDeadlineScheduler(nil, &fakeNotifier{}, zap.NewNop(), Options{})
	if _, err := NewRunner("every now and then", s, zap.NewNop()); err == nil {
		t.Errorf("expected invalid spec to be rejected")
	}
	if _, err := NewRunner("@every 1m", s, zap.NewNop()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
