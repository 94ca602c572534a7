package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/services"
	"github.com/fluxa-io/fluxa/pkg/workflow"
)

// userHeader carries the acting user's id. The API trusts its caller; real
// authentication sits in front of it.
const userHeader = "X-User-ID"

const defaultRunHistoryLimit = 20

type APIHandlers struct {
	workflowService *services.Workflow
	approvalService *services.Approval
	taskService     *services.Task
	exportService   *services.Export
	executor        *workflow.Executor
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	approvalService *services.Approval,
	taskService *services.Task,
	exportService *services.Export,
	executor *workflow.Executor,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		approvalService: approvalService,
		taskService:     taskService,
		exportService:   exportService,
		executor:        executor,
		validator:       validator,
	}
}

func requester(c fiber.Ctx) string {
	if user := c.Get(userHeader); user != "" {
		return user
	}

	return "local"
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.ListVisible(c.Context(), requester(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), requester(c), &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Triggers:    req.Triggers,
		Actions:     req.Actions,
		Variables:   req.Variables,
		IsEnabled:   req.IsEnabled,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := h.workflowService.Get(c.Context(), requester(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), requester(c), &models.Workflow{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Triggers:    req.Triggers,
		Actions:     req.Actions,
		Variables:   req.Variables,
		IsEnabled:   req.IsEnabled,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), requester(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableWorkflow(c fiber.Ctx) error {
	return h.setEnabled(c, true)
}

func (h *APIHandlers) DisableWorkflow(c fiber.Ctx) error {
	return h.setEnabled(c, false)
}

func (h *APIHandlers) setEnabled(c fiber.Ctx, enabled bool) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := h.workflowService.SetEnabled(c.Context(), requester(c), id, enabled)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) ShareWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ShareWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	wf, err := h.workflowService.Share(c.Context(), requester(c), id, req.UserID, req.Permissions)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

// RunWorkflow launches a run synchronously and returns its record. The
// requester needs the run permission.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req RunWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	user := requester(c)

	wf, err := h.workflowService.Get(c.Context(), user, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !h.workflowService.CanRun(wf, user) {
		return handleServiceError(c, services.ErrPermissionDenied)
	}

	trigger := wf.Triggers[0]

	if req.TriggerID != "" {
		trigger = nil

		for _, tr := range wf.Triggers {
			if tr.ID == req.TriggerID {
				trigger = tr
				break
			}
		}

		if trigger == nil {
			return badRequest(c, "Unknown trigger ID")
		}
	}

	seed := models.NewVariableContext(req.Variables)
	seed.Set("trigger_user_id", user)

	record, err := h.executor.Run(c.Context(), wf, trigger, seed)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit := defaultRunHistoryLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	runs, err := h.workflowService.Runs(c.Context(), requester(c), id, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs})
}

func (h *APIHandlers) GetApprovals(c fiber.Ctx) error {
	approvals, err := h.approvalService.ListPending(c.Context(), requester(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"approvals": approvals})
}

func (h *APIHandlers) ApproveApproval(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval ID is required")
	}

	if err := h.approvalService.Approve(c.Context(), requester(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DenyApproval(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval ID is required")
	}

	if err := h.approvalService.Deny(c.Context(), requester(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	var statuses []models.TaskStatus

	if statusStr := c.Query("status"); statusStr != "" {
		statuses = append(statuses, models.TaskStatus(statusStr))
	}

	tasks, err := h.taskService.List(c.Context(), statuses...)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": tasks})
}

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var req services.EnqueueRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	task, err := h.taskService.Enqueue(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	task, err := h.taskService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) CancelTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	task, err := h.taskService.Cancel(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) ExportWorkflows(c fiber.Ctx) error {
	doc, err := h.exportService.Export(c.Context(), requester(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

// ImportWorkflows takes an export document as the request body. The overwrite
// query flag replaces same-name workflows instead of renaming the imports.
func (h *APIHandlers) ImportWorkflows(c fiber.Ctx) error {
	overwrite := false

	if overwriteStr := c.Query("overwrite"); overwriteStr != "" {
		parsed, err := strconv.ParseBool(overwriteStr)
		if err != nil {
			return badRequest(c, "Invalid overwrite flag")
		}

		overwrite = parsed
	}

	imported, err := h.exportService.Import(c.Context(), requester(c), c.Body(), overwrite)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"workflows": imported})
}
