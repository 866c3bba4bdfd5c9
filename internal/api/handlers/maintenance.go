// maintenance.go — обработчик POST /api/maintenance/reap.
// Делегирует внеочередной цикл очистки в ReaperService.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/fileshare/internal/service"
)

// ReapRunner — интерфейс для запуска цикла очистки.
// Позволяет тестировать handler без полного ReaperService.
type ReapRunner interface {
	RunOnce() *service.ReapResult
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reaper ReapRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reaper ReapRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reaper: reaper}
}

// Reap обрабатывает POST /api/maintenance/reap.
// Запускает синхронный цикл очистки и возвращает его результат.
func (h *MaintenanceHandler) Reap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.reaper.RunOnce())
}
