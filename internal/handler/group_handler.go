package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 4. Grupos
// ============================================================

func listGroupsHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/groups")
		defer span.End()

		groups, err := svc.List(ctx, companyID(r), r.URL.Query().Get("connection_id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, listResponse(groups, 1, len(groups)))
	}
}

func getGroupHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/groups/{groupId}")
		defer span.End()

		g, err := svc.Get(ctx, companyID(r), chi.URLParam(r, "groupId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, g)
	}
}

func createGroupHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/groups")
		defer span.End()

		var req domain.CreateGroupRequest
		if !decodeBody(w, r, &req) {
			return
		}

		g, err := svc.Create(ctx, companyID(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, g)
	}
}

func updateGroupHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/groups/{groupId}")
		defer span.End()

		var req domain.UpdateGroupRequest
		if !decodeBody(w, r, &req) {
			return
		}

		g, err := svc.Update(ctx, companyID(r), chi.URLParam(r, "groupId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, g)
	}
}

func deleteGroupHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/groups/{groupId}")
		defer span.End()

		if err := svc.Delete(ctx, companyID(r), chi.URLParam(r, "groupId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func importGroupsHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/groups/import")
		defer span.End()

		var req domain.ImportGroupsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := service.Validate(&req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.Import(ctx, companyID(r), req.ConnectionID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

// ============================================================
// 5. Participantes
// ============================================================

func listMembersHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/groups/{groupId}/members")
		defer span.End()

		members, err := svc.ListMembers(ctx, companyID(r), chi.URLParam(r, "groupId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, listResponse(members, 1, len(members)))
	}
}

type membersFunc func(ctx context.Context, companyID, groupID string, req *domain.MembersRequest) error

// membersHandler serves add, remove, promote and demote alike.
func membersHandler(fn membersFunc, action string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "/v1/groups/{groupId}/members "+action)
		defer span.End()

		var req domain.MembersRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if err := fn(ctx, companyID(r), chi.URLParam(r, "groupId"), &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Participantes atualizados"})
	}
}

// ============================================================
// 6. Moderação
// ============================================================

func getModerationHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/groups/{groupId}/moderation")
		defer span.End()

		settings, err := svc.GetModeration(ctx, companyID(r), chi.URLParam(r, "groupId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, settings)
	}
}

func updateModerationHandler(svc *service.GroupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/groups/{groupId}/moderation")
		defer span.End()

		var req domain.UpdateModerationRequest
		if !decodeBody(w, r, &req) {
			return
		}

		settings, err := svc.UpdateModeration(ctx, companyID(r), chi.URLParam(r, "groupId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, settings)
	}
}
