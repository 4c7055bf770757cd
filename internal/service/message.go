package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var messageTracer = otel.Tracer("service/message")

// broadcastConcurrency bounds concurrent store writes of one broadcast.
const broadcastConcurrency = 8

// MessageService stores messages and delivers them through the gateway.
type MessageService struct {
	messages    port.MessageStore
	groups      port.GroupStore
	companies   port.CompanyStore
	connections *ConnectionService
	queue       port.MessageQueue
	notifier    port.Notifier
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewMessageService creates a new message service.
func NewMessageService(
	messages port.MessageStore,
	groups port.GroupStore,
	companies port.CompanyStore,
	connections *ConnectionService,
	queue port.MessageQueue,
	notifier port.Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		messages:    messages,
		groups:      groups,
		companies:   companies,
		connections: connections,
		queue:       queue,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// SetQueue swaps the dispatch queue. main builds the queue after the
// service when the local queue needs the service as its handler.
func (s *MessageService) SetQueue(q port.MessageQueue) {
	s.queue = q
}

// ============================================================
// Queries
// ============================================================

// List returns the messages of a company, newest first.
func (s *MessageService) List(ctx context.Context, companyID string, status domain.MessageStatus, page, pageSize int) ([]domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.List")
	defer span.End()

	return s.messages.ListMessages(ctx, companyID, status, page, pageSize)
}

// Get returns one message of a company.
func (s *MessageService) Get(ctx context.Context, companyID, messageID string) (*domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.Get")
	defer span.End()

	return s.messages.GetMessage(ctx, companyID, messageID)
}

// DueMessages returns scheduled messages whose time has come.
func (s *MessageService) DueMessages(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.DueMessages")
	defer span.End()

	return s.messages.ListDueMessages(ctx, now, limit)
}

// ============================================================
// Create / Broadcast / Cancel
// ============================================================

// Create stores a message for one group. Drafts wait, a future
// scheduled_at waits for the scheduler, anything else is queued at once.
func (s *MessageService) Create(ctx context.Context, companyID string, req *domain.CreateMessageRequest) (*domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.Create")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "Campo obrigatório"}
	}

	g, err := s.groups.GetGroup(ctx, companyID, req.GroupID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMonthlyLimit(ctx, companyID, 1); err != nil {
		return nil, err
	}

	msg, err := s.messages.CreateMessage(ctx, s.newMessage(companyID, g, req.Content, req.ScheduledAt, req.Draft, ""))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if msg.Status == domain.MessageQueued {
		if err := s.enqueue(ctx, msg); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// Broadcast stores one message per target group under a shared broadcast id.
// Every group is checked before anything is written.
func (s *MessageService) Broadcast(ctx context.Context, companyID string, req *domain.BroadcastRequest) (*domain.BroadcastResponse, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.Broadcast")
	defer span.End()
	span.SetAttributes(attribute.Int("broadcast.groups", len(req.GroupIDs)))

	if err := Validate(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "Campo obrigatório"}
	}
	if err := s.checkMonthlyLimit(ctx, companyID, len(req.GroupIDs)); err != nil {
		return nil, err
	}

	groups := make([]*domain.Group, len(req.GroupIDs))
	lookup, lctx := errgroup.WithContext(ctx)
	lookup.SetLimit(broadcastConcurrency)
	for i, id := range req.GroupIDs {
		lookup.Go(func() error {
			g, err := s.groups.GetGroup(lctx, companyID, id)
			if err != nil {
				return err
			}
			groups[i] = g
			return nil
		})
	}
	if err := lookup.Wait(); err != nil {
		return nil, err
	}

	broadcastID := uuid.NewString()
	out := make([]domain.Message, len(groups))
	write, wctx := errgroup.WithContext(ctx)
	write.SetLimit(broadcastConcurrency)
	for i, g := range groups {
		write.Go(func() error {
			msg, err := s.messages.CreateMessage(wctx, s.newMessage(companyID, g, req.Content, req.ScheduledAt, false, broadcastID))
			if err != nil {
				return fmt.Errorf("create message for group %s: %w", g.ID, err)
			}
			out[i] = *msg
			return nil
		})
	}
	if err := write.Wait(); err != nil {
		s.logger.Error("broadcast partially written",
			zap.String("broadcast_id", broadcastID),
			zap.Error(err),
		)
		s.abandon(ctx, out)
		return nil, err
	}

	// nothing is handed to the workers before every row exists
	for i := range out {
		if out[i].Status != domain.MessageQueued {
			continue
		}
		if err := s.enqueue(ctx, &out[i]); err != nil {
			out[i].Status = domain.MessageFailed
			out[i].Error = "fila de envio indisponível"
		}
	}

	s.logger.Info("broadcast created",
		zap.String("company_id", companyID),
		zap.String("broadcast_id", broadcastID),
		zap.Int("groups", len(groups)),
	)
	return &domain.BroadcastResponse{BroadcastID: broadcastID, Messages: out}, nil
}

// abandon cancels the rows of a broadcast that could not be fully written,
// so none of them is sent or picked up by the scheduler later.
func (s *MessageService) abandon(ctx context.Context, written []domain.Message) {
	ctx = context.WithoutCancel(ctx)
	for _, msg := range written {
		if msg.ID == "" {
			continue
		}
		if err := s.messages.UpdateMessage(ctx, msg.ID, map[string]any{
			"status": domain.MessageCancelled,
			"error":  "envio em massa incompleto",
		}); err != nil {
			s.logger.Error("failed to cancel broadcast message", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
}

// Cancel cancels a draft or scheduled message.
func (s *MessageService) Cancel(ctx context.Context, companyID, messageID string) (*domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.Cancel")
	defer span.End()

	msg, err := s.messages.GetMessage(ctx, companyID, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.Cancellable() {
		return nil, &domain.ErrValidation{
			Field:   "status",
			Message: fmt.Sprintf("Mensagem com status %s não pode ser cancelada", msg.Status),
		}
	}

	if err := s.messages.UpdateMessage(ctx, messageID, map[string]any{
		"status": domain.MessageCancelled,
	}); err != nil {
		return nil, fmt.Errorf("cancel message: %w", err)
	}
	msg.Status = domain.MessageCancelled
	return msg, nil
}

func (s *MessageService) newMessage(companyID string, g *domain.Group, content string, scheduledAt *time.Time, draft bool, broadcastID string) *domain.Message {
	msg := &domain.Message{
		CompanyID:    companyID,
		ConnectionID: g.ConnectionID,
		GroupID:      g.ID,
		Content:      content,
		ScheduledAt:  scheduledAt,
		BroadcastID:  broadcastID,
	}
	switch {
	case draft:
		msg.Status = domain.MessageDraft
	case scheduledAt != nil && scheduledAt.After(s.now()):
		msg.Status = domain.MessageScheduled
	default:
		msg.Status = domain.MessageQueued
		msg.ScheduledAt = nil
	}
	return msg
}

// checkMonthlyLimit counts every message created since the first day of
// the month, whatever its status.
func (s *MessageService) checkMonthlyLimit(ctx context.Context, companyID string, adding int) error {
	company, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return fmt.Errorf("get company: %w", err)
	}
	if company.MessagesPerMonth <= 0 {
		return nil
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	current, err := s.messages.CountMessages(ctx, companyID, "", &monthStart)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if current+adding > company.MessagesPerMonth {
		return &domain.ErrLimitExceeded{LimitType: "messages_per_month", Limit: company.MessagesPerMonth, Current: current}
	}
	return nil
}

// enqueue hands a queued message to the workers. A message the queue
// refused is marked failed so it does not sit in queued forever.
func (s *MessageService) enqueue(ctx context.Context, msg *domain.Message) error {
	err := s.queue.Enqueue(ctx, domain.DispatchJob{
		JobID:      uuid.NewString(),
		MessageID:  msg.ID,
		EnqueuedAt: s.now().UTC(),
	})
	if err == nil {
		return nil
	}

	s.logger.Error("failed to enqueue message",
		zap.String("message_id", msg.ID),
		zap.Error(err),
	)
	if uerr := s.messages.UpdateMessage(context.WithoutCancel(ctx), msg.ID, map[string]any{
		"status": domain.MessageFailed,
		"error":  "fila de envio indisponível",
	}); uerr != nil {
		s.logger.Error("failed to mark message failed", zap.String("message_id", msg.ID), zap.Error(uerr))
	}
	return &domain.ErrExternalService{Service: "queue", Err: err}
}

// ============================================================
// Dispatch
// ============================================================

// DispatchDue moves due scheduled messages to queued and enqueues them.
// It returns how many were handed over.
func (s *MessageService) DispatchDue(ctx context.Context, limit int) (int, error) {
	ctx, span := messageTracer.Start(ctx, "MessageService.DispatchDue")
	defer span.End()

	due, err := s.messages.ListDueMessages(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range due {
		msg := &due[i]
		claimed, err := s.messages.TransitionMessage(ctx, msg.ID, domain.MessageScheduled, map[string]any{
			"status": domain.MessageQueued,
		})
		if err != nil {
			s.logger.Warn("failed to queue due message", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		if !claimed {
			// cancelled meanwhile, or another dispatcher got it first
			continue
		}
		msg.Status = domain.MessageQueued
		if err := s.enqueue(ctx, msg); err != nil {
			continue
		}
		dispatched++
	}
	span.SetAttributes(attribute.Int("messages.dispatched", dispatched))
	return dispatched, nil
}

// Deliver sends one queued message. Anything but queued is skipped, so a
// redelivered job is harmless. Gateway and connection problems mark the
// message failed and are not returned: retrying would not help. Store
// errors are returned so the queue can redeliver.
func (s *MessageService) Deliver(ctx context.Context, messageID string) error {
	ctx, span := messageTracer.Start(ctx, "MessageService.Deliver")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))

	msg, err := s.messages.GetMessage(ctx, "", messageID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			s.logger.Warn("dispatch: message vanished", zap.String("message_id", messageID))
			return nil
		}
		return err
	}
	if msg.Status != domain.MessageQueued {
		return nil
	}

	log := s.logger.With(zap.String("message_id", msg.ID), zap.String("group_id", msg.GroupID))

	g, err := s.groups.GetGroup(ctx, msg.CompanyID, msg.GroupID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return s.markFailed(ctx, msg, "Grupo não encontrado", log)
		}
		return err
	}

	conn, err := s.connections.Get(ctx, msg.CompanyID, g.ConnectionID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return s.markFailed(ctx, msg, "Conexão não encontrada", log)
		}
		return err
	}
	if conn.Status != domain.ConnectionActive {
		return s.markFailed(ctx, msg, "Conexão não está ativa", log)
	}

	gw, err := s.connections.GatewayFor(ctx, conn)
	if err != nil {
		return err
	}

	res, err := gw.SendText(ctx, conn.InstanceName, g.GroupJID, msg.Content)
	if err != nil {
		log.Error("dispatch: gateway send failed", zap.Error(err))
		if ferr := s.markFailed(ctx, msg, domain.GatewayErrorMessage, log); ferr != nil {
			return ferr
		}
		s.notifier.Notify(ctx, msg.CompanyID, domain.NotifyError, "Falha ao enviar mensagem", domain.GatewayErrorMessage)
		return nil
	}

	s.metrics.IncrDispatched(string(domain.MessageSent))
	ts := s.now().UTC().Format(time.RFC3339)
	if err := s.messages.UpdateMessage(ctx, msg.ID, map[string]any{
		"status":  domain.MessageSent,
		"sent_at": ts,
		"error":   "",
	}); err != nil {
		// not returned: a redelivery would send the text twice
		log.Error("dispatch: message sent but status not saved", zap.Error(err))
		return nil
	}

	if err := s.groups.UpdateGroup(ctx, g.ID, map[string]any{
		"messages_count": g.MessagesCount + 1,
		"last_activity":  ts,
	}); err != nil {
		log.Warn("dispatch: failed to bump group activity", zap.Error(err))
	}

	log.Info("dispatch: message sent", zap.String("gateway_message_id", res.MessageID))
	return nil
}

func (s *MessageService) markFailed(ctx context.Context, msg *domain.Message, reason string, log *zap.Logger) error {
	s.metrics.IncrDispatched(string(domain.MessageFailed))
	if err := s.messages.UpdateMessage(ctx, msg.ID, map[string]any{
		"status": domain.MessageFailed,
		"error":  reason,
	}); err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	log.Warn("dispatch: message failed", zap.String("reason", reason))
	return nil
}
