package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/mstgnz/walletpay/infra/config"
	"github.com/mstgnz/walletpay/infra/response"
	"github.com/mstgnz/walletpay/payment"
)

const (
	statusHealthy       = "healthy"
	statusDegraded      = "degraded"
	statusUnhealthy     = "unhealthy"
	statusNotConfigured = "not_configured"

	healthCheckTimeout = 5 * time.Second
)

// HealthHandler handles health check requests
type HealthHandler struct {
	app        *config.AppConfig
	config     *payment.TransactionConfig
	db         *sql.DB
	store      StoreStatsReader
	openSearch bool
	startTime  time.Time
}

// HealthStatus represents overall service health
type HealthStatus struct {
	Status             string                    `json:"status"`
	Version            string                    `json:"version"`
	Timestamp          time.Time                 `json:"timestamp"`
	Uptime             string                    `json:"uptime"`
	Environment        string                    `json:"environment"`
	Gateway            string                    `json:"gateway"`
	PaymentEnvironment payment.Environment       `json:"payment_environment"`
	Database           *DatabaseHealth           `json:"database"`
	Services           map[string]*ServiceHealth `json:"services"`
	System             *SystemHealth             `json:"system"`
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime string `json:"response_time"`
	OpenConns    int    `json:"open_connections"`
	InUseConns   int    `json:"in_use_connections"`
	IdleConns    int    `json:"idle_connections"`
	WaitCount    int64  `json:"wait_count"`
	Version      string `json:"version,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SystemHealth represents process resource usage
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// NewHealthHandler creates a new health handler. db and store may be nil.
func NewHealthHandler(app *config.AppConfig, txConfig *payment.TransactionConfig, db *sql.DB, store StoreStatsReader, openSearch bool) *HealthHandler {
	return &HealthHandler{
		app:        app,
		config:     txConfig,
		db:         db,
		store:      store,
		openSearch: openSearch,
		startTime:  time.Now(),
	}
}

// CheckHealth reports the service status. Only an unreachable database
// makes the service unhealthy.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	snap := h.config.Snapshot()
	health := &HealthStatus{
		Version:            config.Version,
		Timestamp:          time.Now().UTC(),
		Uptime:             time.Since(h.startTime).Round(time.Second).String(),
		Environment:        h.app.Environment,
		Gateway:            snap.GatewayName,
		PaymentEnvironment: snap.Environment,
		Database:           h.checkDatabaseHealth(ctx),
		Services:           h.checkServicesHealth(snap),
		System:             checkSystemHealth(),
	}
	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != statusUnhealthy,
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{Status: statusNotConfigured}
	if h.db == nil {
		return dbHealth
	}

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		dbHealth.Status = statusUnhealthy
		dbHealth.Error = "database ping failed"
		dbHealth.ResponseTime = time.Since(start).String()
		return dbHealth
	}
	elapsed := time.Since(start)

	stats := h.db.Stats()
	dbHealth.Connected = true
	dbHealth.ResponseTime = elapsed.String()
	dbHealth.OpenConns = stats.OpenConnections
	dbHealth.InUseConns = stats.InUse
	dbHealth.IdleConns = stats.Idle
	dbHealth.WaitCount = stats.WaitCount

	var version string
	if err := h.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err == nil {
		if parts := strings.Fields(version); len(parts) > 1 {
			dbHealth.Version = parts[1]
		}
	}

	if elapsed > time.Second || dbHealth.WaitCount > 100 {
		dbHealth.Status = statusDegraded
	} else {
		dbHealth.Status = statusHealthy
	}
	return dbHealth
}

func (h *HealthHandler) checkServicesHealth(snap payment.Snapshot) map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth, 4)

	services["transaction_config"] = &ServiceHealth{
		Status:      statusHealthy,
		Healthy:     true,
		Description: "Wallet configuration document",
	}
	if _, err := snap.Describe(); err != nil {
		services["transaction_config"].Status = statusDegraded
		services["transaction_config"].Healthy = false
		services["transaction_config"].Error = err.Error()
	}

	services["idempotency"] = optionalService(h.store != nil, "Duplicate payment protection")
	if h.store != nil {
		services["idempotency"].Description += " (" + h.store.Stats().Backend + ")"
	}
	services["postgres_logger"] = optionalService(h.db != nil, "Payment attempts in PostgreSQL")
	services["opensearch_logger"] = optionalService(h.openSearch, "Payment attempts and system logs in OpenSearch")

	return services
}

func optionalService(enabled bool, description string) *ServiceHealth {
	if !enabled {
		return &ServiceHealth{Status: statusNotConfigured, Description: description}
	}
	return &ServiceHealth{Status: statusHealthy, Healthy: true, Description: description}
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

func determineOverallStatus(health *HealthStatus) string {
	if health.Database != nil && health.Database.Status == statusUnhealthy {
		return statusUnhealthy
	}
	if health.Database != nil && health.Database.Status == statusDegraded {
		return statusDegraded
	}
	if svc, ok := health.Services["transaction_config"]; ok && !svc.Healthy {
		return statusDegraded
	}
	return statusHealthy
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
