package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 2. Conexões WhatsApp
// ============================================================

func redactConnections(in []domain.Connection) []domain.Connection {
	out := make([]domain.Connection, len(in))
	for i, c := range in {
		out[i] = c.Redacted()
	}
	return out
}

func listConnectionsHandler(svc *service.ConnectionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/connections")
		defer span.End()

		conns, err := svc.List(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, listResponse(redactConnections(conns), 1, len(conns)))
	}
}

func getConnectionHandler(svc *service.ConnectionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/connections/{connectionId}")
		defer span.End()

		conn, err := svc.Get(ctx, companyID(r), chi.URLParam(r, "connectionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, conn.Redacted())
	}
}

func createConnectionHandler(svc *service.ConnectionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/connections")
		defer span.End()

		var req domain.CreateConnectionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		conn, err := svc.Create(ctx, companyID(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, conn.Redacted())
	}
}

func updateConnectionHandler(svc *service.ConnectionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/connections/{connectionId}")
		defer span.End()

		var req domain.UpdateConnectionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		conn, err := svc.Update(ctx, companyID(r), chi.URLParam(r, "connectionId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, conn.Redacted())
	}
}

func deleteConnectionHandler(svc *service.ConnectionService, pairing *service.PairingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/connections/{connectionId}")
		defer span.End()

		id := chi.URLParam(r, "connectionId")
		stopPairing(r, pairing, id, logger)

		if err := svc.Delete(ctx, companyID(r), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func disconnectHandler(svc *service.ConnectionService, pairing *service.PairingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/connections/{connectionId}/disconnect")
		defer span.End()

		id := chi.URLParam(r, "connectionId")
		stopPairing(r, pairing, id, logger)

		conn, err := svc.Disconnect(ctx, companyID(r), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, conn.Redacted())
	}
}

func syncConnectionHandler(svc *service.ConnectionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/connections/{connectionId}/sync")
		defer span.End()

		conn, err := svc.Sync(ctx, companyID(r), chi.URLParam(r, "connectionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, conn.Redacted())
	}
}

// stopPairing cancels a running pairing before the connection goes away.
func stopPairing(r *http.Request, pairing *service.PairingService, connectionID string, logger *zap.Logger) {
	if pairing == nil {
		return
	}
	err := pairing.Cancel(r.Context(), companyID(r), connectionID)
	var nf *domain.ErrNotFound
	if err != nil && !errors.As(err, &nf) {
		logger.Warn("failed to cancel pairing", zap.String("connection_id", connectionID), zap.Error(err))
	}
}

// ============================================================
// 3. Pareamento por QR code
// ============================================================

func startPairingHandler(pairing *service.PairingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/connections/{connectionId}/pairing")
		defer span.End()

		var opts service.PairingOptions
		if !decodeOptionalBody(w, r, &opts) {
			return
		}

		startPairing(ctx, w, r, pairing, opts, logger)
	}
}

func reconnectHandler(pairing *service.PairingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/connections/{connectionId}/reconnect")
		defer span.End()

		startPairing(ctx, w, r, pairing, service.PairingOptions{Reconnect: true}, logger)
	}
}

// startPairing answers 202: the session keeps polling after the response.
func startPairing(ctx context.Context, w http.ResponseWriter, r *http.Request, pairing *service.PairingService, opts service.PairingOptions, logger *zap.Logger) {
	sess, err := pairing.Start(ctx, companyID(r), chi.URLParam(r, "connectionId"), opts)
	if err != nil {
		handleServiceError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusAccepted, sess)
}

func pairingStatusHandler(pairing *service.PairingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/connections/{connectionId}/pairing")
		defer span.End()

		sess, err := pairing.Status(ctx, companyID(r), chi.URLParam(r, "connectionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, sess)
	}
}

func cancelPairingHandler(pairing *service.PairingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/connections/{connectionId}/pairing")
		defer span.End()

		if err := pairing.Cancel(ctx, companyID(r), chi.URLParam(r, "connectionId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func pairingQRCodeHandler(pairing *service.PairingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/connections/{connectionId}/pairing/qr.png")
		defer span.End()

		png, err := pairing.QRCodePNG(ctx, companyID(r), chi.URLParam(r, "connectionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}
