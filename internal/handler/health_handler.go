package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
)

// ============================================================
// Métricas & Health
// ============================================================

// HealthProbe checks one dependency for /healthz.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

const probeTimeout = 3 * time.Second

func healthzHandler(probes []HealthProbe, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := make([]domain.ServiceHealth, len(probes)+1)
		services[0] = domain.ServiceHealth{Name: "bfa-api", Status: "healthy", LastChecked: now}

		var wg sync.WaitGroup
		for i, p := range probes {
			wg.Add(1)
			go func(i int, p HealthProbe) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
				defer cancel()

				start := time.Now()
				status := "healthy"
				if err := p.Check(ctx); err != nil {
					logger.Warn("health probe failed", zap.String("probe", p.Name), zap.Error(err))
					status = "degraded"
				}
				services[i+1] = domain.ServiceHealth{
					Name:        p.Name,
					Status:      status,
					LatencyMs:   time.Since(start).Milliseconds(),
					LastChecked: now,
				}
			}(i, p)
		}
		wg.Wait()

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func pairingMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPairingSnapshot())
	}
}
