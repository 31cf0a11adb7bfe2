package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the JSON view of pgxpool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Pinger is anything the health endpoint can probe: the pgx pool, the lock
// backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentHealth is the result of probing one Pinger.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport is the body served by /health.
type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Pool       *PoolStats                 `json:"pool,omitempty"`
}

// Check probes every component with a shared timeout. The report is
// unhealthy if any component fails.
func Check(ctx context.Context, components map[string]Pinger, timeout time.Duration) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	report := HealthReport{Status: "healthy", Components: make(map[string]ComponentHealth, len(components))}
	for _, name := range names {
		if err := components[name].Ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Components[name] = ComponentHealth{Status: "down", Error: err.Error()}
			continue
		}
		report.Components[name] = ComponentHealth{Status: "up"}
	}
	return report
}

// HealthHandler serves a HealthReport. pool may be nil; when set, its
// statistics are included.
func HealthHandler(pool *pgxpool.Pool, components map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		report := Check(c.Request().Context(), components, 5*time.Second)
		if pool != nil {
			report.Pool = GetPoolStats(pool)
		}
		if report.Status != "healthy" {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
