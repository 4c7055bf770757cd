package service_test

import (
	"context"
	"testing"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"go.uber.org/zap"
)

type failingNotificationStore struct{ memNotifications }

func (f *failingNotificationStore) CreateNotification(context.Context, *domain.Notification) error {
	return &domain.ErrExternalService{Service: "supabase", Status: 503}
}

func TestNotify_PersistsAndSurvivesCancelledContext(t *testing.T) {
	store := &memNotifications{}
	svc := service.NewNotificationService(store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Notify(ctx, testCompany, domain.NotifySuccess, "WhatsApp conectado", "Suporte")

	rows, err := svc.List(context.Background(), testCompany, true, 1, 20)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rows) != 1 || rows[0].Title != "WhatsApp conectado" {
		t.Fatalf("expected the notification stored, got %+v", rows)
	}

	if err := svc.MarkRead(context.Background(), testCompany, rows[0].ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	unread, _ := svc.UnreadCount(context.Background(), testCompany)
	if unread != 0 {
		t.Errorf("expected 0 unread, got %d", unread)
	}
}

func TestNotify_StoreFailureIsSwallowed(t *testing.T) {
	svc := service.NewNotificationService(&failingNotificationStore{}, zap.NewNop())

	// must not panic nor block
	svc.Notify(context.Background(), testCompany, domain.NotifyError, "Falha", domain.GatewayErrorMessage)
}
