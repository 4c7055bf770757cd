package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/qrcode"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var pairingTracer = otel.Tracer("service/pairing")

// persistTimeout bounds the MarkConnected write once a session connected.
const persistTimeout = 10 * time.Second

// errNoQRCode is returned when connect neither opened the session nor
// produced something to scan.
var errNoQRCode = errors.New("gateway returned no qr code")

// PairingOptions tunes one pairing attempt.
type PairingOptions struct {
	// Reconnect skips instance creation: the instance already exists on the
	// gateway (retry after a failed connect, or a disconnected number).
	Reconnect bool `json:"reconnect"`
}

// PairingConfig holds the timing of the poll loop.
type PairingConfig struct {
	PollInterval time.Duration // fixed, no backoff
	SessionTTL   time.Duration // polling window of an unanswered QR, and how long finished sessions stay readable
}

// PairingService drives the QR pairing of connections:
//
//	idle → generating → qr_displayed → polling → connected | error
//
// One session per connection. Starting again replaces (and cancels) the
// previous session; cancelling stops the poll loop and discards any answer
// still in flight.
type PairingService struct {
	connections *ConnectionService
	notifier    port.Notifier
	metrics     *observability.Metrics
	logger      *zap.Logger
	cfg         PairingConfig
	now         func() time.Time

	// poll loops are children of this context, not of the request
	loopCtx   context.Context
	stopLoops context.CancelFunc
	loops     sync.WaitGroup
	mu        sync.Mutex
	sessions  map[string]*pairingSession
}

type pairingSession struct {
	snap   domain.PairingSession
	cancel context.CancelFunc
}

// NewPairingService creates a new pairing service.
func NewPairingService(connections *ConnectionService, notifier port.Notifier, metrics *observability.Metrics, cfg PairingConfig, logger *zap.Logger) *PairingService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PairingService{
		connections: connections,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
		loopCtx:     ctx,
		stopLoops:   cancel,
		sessions:    make(map[string]*pairingSession),
	}
}

// ============================================================
// Start: POST /v1/connections/{id}/pairing
// ============================================================

// Start creates the gateway instance (unless opts.Reconnect), asks for a QR
// code and starts polling. Create/connect failures leave the session in
// error, emit an error notification and are returned; retrying means
// calling Start again.
func (s *PairingService) Start(ctx context.Context, companyID, connectionID string, opts PairingOptions) (*domain.PairingSession, error) {
	ctx, span := pairingTracer.Start(ctx, "PairingService.Start")
	defer span.End()
	span.SetAttributes(attribute.String("connection.id", connectionID), attribute.Bool("reconnect", opts.Reconnect))

	conn, err := s.connections.Get(ctx, companyID, connectionID)
	if err != nil {
		return nil, err
	}
	gw, err := s.connections.GatewayFor(ctx, conn)
	if err != nil {
		return nil, err
	}

	sess := s.open(conn)
	s.metrics.IncrPairing(observability.PairingStarted)
	log := s.logger.With(
		zap.String("connection_id", conn.ID),
		zap.String("instance_name", conn.InstanceName),
		zap.String("session_id", sess.snap.ID),
	)

	if !opts.Reconnect {
		if err := gw.CreateInstance(ctx, conn.InstanceName); err != nil {
			log.Error("pairing: create instance failed", zap.Error(err))
			s.fail(ctx, sess)
			return s.snapshot(sess), err
		}
	}

	res, err := gw.ConnectInstance(ctx, conn.InstanceName)
	if err != nil {
		log.Error("pairing: connect instance failed", zap.Error(err))
		s.fail(ctx, sess)
		return s.snapshot(sess), err
	}

	if res.IsOpen() {
		// already paired: no QR step
		number := ""
		if info, err := gw.GetInstanceInfo(ctx, conn.InstanceName); err == nil {
			number = info.Number
		}
		log.Info("pairing: instance already open")
		s.complete(ctx, sess, conn, number)
		return s.snapshot(sess), nil
	}

	if !res.HasQRCode() {
		err := &domain.ErrExternalService{Service: "evolution/connect_instance", Err: errNoQRCode}
		log.Error("pairing: no qr code in connect answer")
		s.fail(ctx, sess)
		return s.snapshot(sess), err
	}

	image := res.Base64
	if image == "" {
		if uri, err := qrcode.DataURI(res.Code); err == nil {
			image = uri
		}
	}

	loopCtx, cancel := context.WithTimeout(s.loopCtx, s.cfg.SessionTTL)
	ok := s.transition(sess, func(snap *domain.PairingSession) {
		snap.State = domain.PairingQRDisplayed
		snap.QRCode = image
		snap.Code = res.Code
		snap.PairingCode = res.PairingCode
		sess.cancel = cancel
	})
	if !ok {
		// cancelled or replaced while the gateway answered
		cancel()
		return s.snapshot(sess), nil
	}

	s.loops.Add(1)
	go s.poll(loopCtx, sess, gw, conn, log)

	log.Info("pairing: qr code displayed")
	return s.snapshot(sess), nil
}

// open registers a fresh session for the connection, replacing any previous one.
func (s *PairingService) open(conn *domain.Connection) *pairingSession {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(now)

	if prev, ok := s.sessions[conn.ID]; ok && !prev.snap.Finished() {
		prev.snap.Cancelled = true
		prev.snap.UpdatedAt = now
		if prev.cancel != nil {
			prev.cancel()
		}
		s.metrics.IncrPairing(observability.PairingCancelled)
	}

	sess := &pairingSession{snap: domain.PairingSession{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		CompanyID:    conn.CompanyID,
		InstanceName: conn.InstanceName,
		State:        domain.PairingGenerating,
		StartedAt:    now,
		UpdatedAt:    now,
	}}
	s.sessions[conn.ID] = sess
	return sess
}

// ============================================================
// Poll loop
// ============================================================

func (s *PairingService) poll(ctx context.Context, sess *pairingSession, gw port.Gateway, conn *domain.Connection, log *zap.Logger) {
	defer s.loops.Done()
	s.metrics.PairingLoopStarted()
	defer s.metrics.PairingLoopStopped()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.expire(sess, log)
			}
			return
		case <-ticker.C:
		}

		if !s.transition(sess, func(snap *domain.PairingSession) {
			if snap.State == domain.PairingQRDisplayed {
				snap.State = domain.PairingPolling
			}
			snap.Polls++
		}) {
			return
		}

		info, err := gw.GetInstanceInfo(ctx, conn.InstanceName)
		if ctx.Err() != nil {
			continue // loop exits on the next select
		}
		if err != nil {
			log.Warn("pairing: status poll failed", zap.Error(err))
			s.metrics.IncrPairing(observability.PairingPollError)
			continue
		}
		if info.State != domain.InstanceOpen {
			continue
		}

		log.Info("pairing: instance connected", zap.String("number", info.Number))
		s.complete(ctx, sess, conn, info.Number)
		return
	}
}

// complete moves the session to connected and performs the single
// persistence write. A failed write is reported, never rolled back.
func (s *PairingService) complete(ctx context.Context, sess *pairingSession, conn *domain.Connection, number string) {
	at := s.now()
	if !s.transition(sess, func(snap *domain.PairingSession) {
		snap.State = domain.PairingConnected
		snap.Number = number
		snap.ConnectedAt = &at
	}) {
		return
	}
	s.metrics.IncrPairing(observability.PairingConnected)

	// the write belongs to the transition, not to whoever closes the modal next
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.connections.MarkConnected(wctx, conn.ID, number, at); err != nil {
		s.logger.Error("pairing: failed to persist connected status",
			zap.String("connection_id", conn.ID),
			zap.Error(err),
		)
		s.setPersistError(sess, err)
		s.notifier.Notify(wctx, conn.CompanyID, domain.NotifyError,
			"Conectado, mas não foi possível salvar o status", "Sincronize a conexão para atualizar os dados.")
		return
	}

	s.notifier.Notify(wctx, conn.CompanyID, domain.NotifySuccess, "WhatsApp conectado", conn.Name)
}

// fail moves the session to error and notifies. Gateway details stay in
// the logs; the user sees one generic message.
func (s *PairingService) fail(ctx context.Context, sess *pairingSession) {
	msg := domain.GatewayErrorMessage
	if !s.transition(sess, func(snap *domain.PairingSession) {
		snap.State = domain.PairingError
		snap.Error = msg
	}) {
		return
	}
	s.metrics.IncrPairing(observability.PairingFailed)
	s.notifier.Notify(ctx, sess.snap.CompanyID, domain.NotifyError, "Falha ao conectar WhatsApp", msg)
}

// expire stops an unanswered session the same way closing the modal does:
// no error state and no notification. Scanning later needs a new Start.
func (s *PairingService) expire(sess *pairingSession, log *zap.Logger) {
	if !s.transition(sess, func(snap *domain.PairingSession) {
		snap.Cancelled = true
	}) {
		return
	}
	s.metrics.IncrPairing(observability.PairingCancelled)
	log.Info("pairing: polling window elapsed, session closed")
}

// transition applies fn under the lock unless the session was cancelled,
// replaced or already finished. It reports whether fn ran.
func (s *PairingService) transition(sess *pairingSession, fn func(*domain.PairingSession)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.snap.Finished() || s.sessions[sess.snap.ConnectionID] != sess {
		return false
	}
	fn(&sess.snap)
	sess.snap.UpdatedAt = s.now()
	return true
}

func (s *PairingService) setPersistError(sess *pairingSession, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.snap.PersistError = err.Error()
	sess.snap.UpdatedAt = s.now()
}

// ============================================================
// Cancel / Status / QR image
// ============================================================

// Cancel stops the poll loop of a connection (modal closed). Answers still
// in flight are discarded. Cancelling a finished session is a no-op.
func (s *PairingService) Cancel(ctx context.Context, companyID, connectionID string) error {
	_, span := pairingTracer.Start(ctx, "PairingService.Cancel")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[connectionID]
	if !ok || (companyID != "" && sess.snap.CompanyID != companyID) {
		return &domain.ErrNotFound{Resource: "pairing_session", ID: connectionID}
	}
	if sess.snap.Finished() {
		return nil
	}

	sess.snap.Cancelled = true
	sess.snap.UpdatedAt = s.now()
	if sess.cancel != nil {
		sess.cancel()
	}
	s.metrics.IncrPairing(observability.PairingCancelled)

	s.logger.Info("pairing: cancelled",
		zap.String("connection_id", connectionID),
		zap.String("state", string(sess.snap.State)),
	)
	return nil
}

// Status returns a snapshot of the current session of a connection.
func (s *PairingService) Status(ctx context.Context, companyID, connectionID string) (*domain.PairingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(s.now())

	sess, ok := s.sessions[connectionID]
	if !ok || (companyID != "" && sess.snap.CompanyID != companyID) {
		return nil, &domain.ErrNotFound{Resource: "pairing_session", ID: connectionID}
	}
	snap := sess.snap
	return &snap, nil
}

// QRCodePNG returns the current QR code as a PNG image.
func (s *PairingService) QRCodePNG(ctx context.Context, companyID, connectionID string) ([]byte, error) {
	snap, err := s.Status(ctx, companyID, connectionID)
	if err != nil {
		return nil, err
	}
	if snap.Cancelled || (snap.State != domain.PairingQRDisplayed && snap.State != domain.PairingPolling) {
		return nil, &domain.ErrNotFound{Resource: "qr_code", ID: connectionID}
	}
	return qrcode.PNG(snap.QRCode, snap.Code, qrcode.DefaultSize)
}

// Close stops every poll loop and waits for them to return.
func (s *PairingService) Close() {
	s.stopLoops()
	s.loops.Wait()
}

func (s *PairingService) snapshot(sess *pairingSession) *domain.PairingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := sess.snap
	return &snap
}

// evictLocked drops finished sessions older than the TTL.
func (s *PairingService) evictLocked(now time.Time) {
	for id, sess := range s.sessions {
		if sess.snap.Finished() && now.Sub(sess.snap.UpdatedAt) > s.cfg.SessionTTL {
			delete(s.sessions, id)
		}
	}
}
