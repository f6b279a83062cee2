package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civickit/municipal-ticketing/internal/api/dto"
	"github.com/civickit/municipal-ticketing/internal/auth"
	"github.com/civickit/municipal-ticketing/internal/service"
	"github.com/civickit/municipal-ticketing/internal/worker"
)

// OpsHandler exposes the scan pipeline to administrators.
type OpsHandler struct {
	sla  *service.SLAService
	scan *worker.SLAScanWorker
}

// NewOpsHandler returns a new handler instance.
func NewOpsHandler(sla *service.SLAService, scan *worker.SLAScanWorker) *OpsHandler {
	return &OpsHandler{sla: sla, scan: scan}
}

// Breaches lists current SLA breaches for the caller's tenant without
// escalating anything.
func (h *OpsHandler) Breaches(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	breaches, err := h.sla.FindBreached(c.UserContext(), principal.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"breaches": dto.FromBreaches(breaches)})
}

// TriggerScan runs one scan cycle immediately.
func (h *OpsHandler) TriggerScan(c *fiber.Ctx) error {
	if err := h.scan.RunCycle(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "scan complete"})
}
