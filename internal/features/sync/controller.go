package sync

import (
	"pos-billing/internal/remote"

	"github.com/gofiber/fiber/v2"
)

type SyncController struct {
	Service SyncService
}

func NewSyncController(service SyncService) *SyncController {
	return &SyncController{Service: service}
}

type pushRequest struct {
	SyncData map[string][]remote.Record `json:"sync_data"`
}

type pullRequest struct {
	LastSync string   `json:"last_sync"`
	Tables   []string `json:"tables"`
}

// GetStatus godoc
// @Summary      Sync status
// @Description  Remote store reachability, most recent journal activity and retry queue depth
// @Tags         sync
// @Produce      json
// @Success      200 {object} StatusReport
// @Router       /sync/status [get]
func (ctrl *SyncController) GetStatus(c *fiber.Ctx) error {
	return c.JSON(ctrl.Service.GetStatus(c.Context()))
}

// PushSync godoc
// @Summary      Push sync
// @Description  Push local records to the remote store. Always HTTP 200; inspect the success flag and errors list.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Success      200 {object} CycleResult
// @Router       /sync/push [post]
func (ctrl *SyncController) PushSync(c *fiber.Ctx) error {
	var req pushRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.SyncData) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No sync data provided",
		})
	}

	return c.JSON(ctrl.Service.PushSync(c.Context(), req.SyncData))
}

// PullSync godoc
// @Summary      Pull sync
// @Description  Delta-pull remote changes since last_sync (full pull when omitted); pulled data is merged into the local snapshots.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Success      200 {object} CycleResult
// @Router       /sync/pull [post]
func (ctrl *SyncController) PullSync(c *fiber.Ctx) error {
	var req pullRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result := ctrl.Service.PullSync(c.Context(), req.LastSync, req.Tables)
	if result.Success {
		ctrl.Service.MergeSnapshots(result)
	}
	return c.JSON(result)
}

// FullSync godoc
// @Summary      Full sync
// @Description  Pull every synchronized table in full and rewrite the local snapshots.
// @Tags         sync
// @Produce      json
// @Success      200 {object} CycleResult
// @Router       /sync/full [post]
func (ctrl *SyncController) FullSync(c *fiber.Ctx) error {
	result := ctrl.Service.PullSync(c.Context(), "", nil)
	if result.Success {
		ctrl.Service.MergeSnapshots(result)
	}
	return c.JSON(result)
}

// GetHistory godoc
// @Summary      Sync history
// @Description  Most recent journal entries, newest first
// @Tags         sync
// @Produce      json
// @Param        limit query int false "Max entries" default(20)
// @Success      200 {object} map[string]interface{}
// @Router       /sync/history [get]
func (ctrl *SyncController) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	entries, err := ctrl.Service.GetHistory(c.Context(), limit)
	if err != nil {
		return c.JSON(fiber.Map{
			"success": false,
			"errors":  []string{err.Error()},
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    entries,
	})
}

// GetSnapshot godoc
// @Summary      Table snapshot
// @Description  Current rows of a table, remote-first with local fallback
// @Tags         sync
// @Produce      json
// @Param        table path string true "Table name"
// @Success      200 {object} map[string]interface{}
// @Router       /sync/snapshot/{table} [get]
func (ctrl *SyncController) GetSnapshot(c *fiber.Ctx) error {
	table := c.Params("table")

	data, fromRemote := ctrl.Service.Snapshot(c.Context(), table)
	source := "local"
	if fromRemote {
		source = "remote"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"source":  source,
		"data":    data,
	})
}
