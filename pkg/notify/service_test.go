package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/realtime"
	"p9e.in/farmops/pkg/testutil"
)

type recordingDeliverer struct {
	mu     sync.Mutex
	calls  [][]uuid.UUID
	events []realtime.Event
}

func (d *recordingDeliverer) Deliver(_ context.Context, ids []uuid.UUID, ev realtime.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, ids)
	d.events = append(d.events, ev)
}

func TestNotifyFarmRoles_FiltersByRoleFarmAndActivity(t *testing.T) {
	db := testutil.OpenTestDB(t)
	farm := testutil.CreateFarm(t, db, "Sunrise")
	other := testutil.CreateFarm(t, db, "Moonrise")

	manager := testutil.CreateUser(t, db, farm, "manager", models.RoleManager)
	owner := testutil.CreateUser(t, db, farm, "owner", models.RoleSuperuser)
	testutil.CreateUser(t, db, farm, "staff", models.RoleStaff)
	testutil.CreateUser(t, db, farm, "accounts", models.RoleFinancialManager)
	testutil.CreateUser(t, db, other, "elsewhere", models.RoleManager)
	retired := testutil.CreateUser(t, db, farm, "retired", models.RoleManager)
	if err := db.Model(retired).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	delivery := &recordingDeliverer{}
	svc := NewNotificationService(db, delivery, zap.NewNop())

	msg := models.NotificationMessage{
		Message: "Alert: Daily Report deadline passed for Sunrise.",
		Data:    &models.NotificationData{Type: models.NotificationTypeDeadlineMissed, ConfigID: "cfg"},
	}
	n, err := svc.NotifyFarmRoles(context.Background(), farm.ID, []models.Role{models.RoleManager, models.RoleSuperuser}, msg)
	if err != nil {
		t.Fatalf("NotifyFarmRoles: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 recipients, got %d", n)
	}

	if len(delivery.calls) != 1 {
		t.Fatalf("expected one delivery, got %d", len(delivery.calls))
	}
	got := map[uuid.UUID]bool{}
	for _, id := range delivery.calls[0] {
		got[id] = true
	}
	if !got[manager.ID] || !got[owner.ID] || len(got) != 2 {
		t.Errorf("unexpected recipients %v", delivery.calls[0])
	}
	if delivery.events[0].Name != realtime.EventNotification {
		t.Errorf("expected notification event, got %q", delivery.events[0].Name)
	}

	inbox, err := svc.List(context.Background(), manager.ID, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Body != msg.Message || inbox[0].Type != models.NotificationTypeDeadlineMissed {
		t.Fatalf("unexpected inbox %+v", inbox)
	}
	dto := inbox[0].ToDTO()
	if dto.Data == nil || dto.Data.ConfigID != "cfg" {
		t.Errorf("expected data to round trip, got %+v", dto.Data)
	}
}

func TestNotifyFarmRoles_NoRecipients(t *testing.T) {
	db := testutil.OpenTestDB(t)
	farm := testutil.CreateFarm(t, db, "Sunrise")
	delivery := &recordingDeliverer{}
	svc := NewNotificationService(db, delivery, zap.NewNop())

	n, err := svc.NotifyFarmRoles(context.Background(), farm.ID, []models.Role{models.RoleManager}, models.NotificationMessage{Message: "hi"})
	if err != nil || n != 0 {
		t.Fatalf("expected no recipients and no error, got %d, %v", n, err)
	}
	if len(delivery.calls) != 0 {
		t.Errorf("expected nothing delivered")
	}
}

func TestInbox_ReadState(t *testing.T) {
	db := testutil.OpenTestDB(t)
	farm := testutil.CreateFarm(t, db, "Sunrise")
	user := testutil.CreateUser(t, db, farm, "manager", models.RoleManager)
	stranger := testutil.CreateUser(t, db, farm, "stranger", models.RoleManager)
	svc := NewNotificationService(db, &recordingDeliverer{}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.NotifyFarmRoles(ctx, farm.ID, []models.Role{models.RoleManager}, models.NotificationMessage{Message: "tick"}); err != nil {
			t.Fatalf("NotifyFarmRoles: %v", err)
		}
	}

	count, _ := svc.UnreadCount(ctx, user.ID)
	if count != 3 {
		t.Fatalf("expected 3 unread, got %d", count)
	}

	inbox, _ := svc.List(ctx, user.ID, Filter{})
	if _, err := svc.MarkRead(ctx, stranger.ID, inbox[0].ID); err != ErrNotificationNotFound {
		t.Errorf("expected another user's notification to be hidden, got %v", err)
	}
	read, err := svc.MarkRead(ctx, user.ID, inbox[0].ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if read.ReadAt == nil || read.Status != models.NotificationStatusRead {
		t.Errorf("expected notification to be read, got %+v", read)
	}

	unread, _ := svc.List(ctx, user.ID, Filter{Unread: true})
	if len(unread) != 2 {
		t.Errorf("expected 2 unread, got %d", len(unread))
	}

	n, err := svc.MarkAllRead(ctx, user.ID)
	if err != nil || n != 2 {
		t.Fatalf("MarkAllRead = %d, %v; expected 2", n, err)
	}
	count, _ = svc.UnreadCount(ctx, user.ID)
	if count != 0 {
		t.Errorf("expected 0 unread, got %d", count)
	}
	if count, _ := svc.UnreadCount(ctx, stranger.ID); count != 3 {
		t.Errorf("expected other user's inbox untouched, got %d unread", count)
	}
}
