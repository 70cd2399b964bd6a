package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corehr/payroll-engine/internal/application/service"
	"github.com/corehr/payroll-engine/internal/domain/entity"
)

const actorKey = "actor"

// Handlers contains all HTTP request handlers
type Handlers struct {
	runService        service.RunService
	exceptionService  service.ExceptionService
	adjustmentService service.AdjustmentService
	grantService      service.GrantService
	payslipService    service.PayslipService
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	runService service.RunService,
	exceptionService service.ExceptionService,
	adjustmentService service.AdjustmentService,
	grantService service.GrantService,
	payslipService service.PayslipService,
	logger Logger,
) *Handlers {
	return &Handlers{
		runService:        runService,
		exceptionService:  exceptionService,
		adjustmentService: adjustmentService,
		grantService:      grantService,
		payslipService:    payslipService,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}

// statusFor translates the engine error taxonomy to HTTP status codes.
// Conflicting state (wrong transition, duplicate decision, locked run,
// concurrent update) maps to 409; bad input to 400; a calculation service
// failure surfaces as 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound),
		errors.Is(err, entity.ErrExceptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrReasonRequired),
		errors.Is(err, entity.ErrInvalidAmount),
		errors.Is(err, entity.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrStageAlreadyDecided),
		errors.Is(err, entity.ErrAlreadyDecided),
		errors.Is(err, entity.ErrRunLocked),
		errors.Is(err, entity.ErrDuplicateRun),
		errors.Is(err, entity.ErrStaleTotals),
		errors.Is(err, entity.ErrCriticalExceptionsOpen),
		errors.Is(err, entity.ErrConcurrentUpdate),
		errors.Is(err, entity.ErrPayslipsNotGenerated):
		return http.StatusConflict
	case errors.Is(err, entity.ErrCalculationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), Response{Success: false, Error: err.Error()})
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StartRunRequest is the body of POST /api/runs
type StartRunRequest struct {
	Entity string `json:"entity" binding:"required"`
	Period string `json:"period" binding:"required"`
	RunID  string `json:"run_id"`
}

// StartPayrollInitiation handles POST /api/runs
func (h *Handlers) StartPayrollInitiation(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	run, err := h.runService.StartPayrollInitiation(c.Request.Context(), actorFrom(c), req.Entity, req.Period, req.RunID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, run)
}

// GetPayrollRun handles GET /api/runs/:runId
func (h *Handlers) GetPayrollRun(c *gin.Context) {
	run, err := h.runService.GetPayrollRunByID(c.Request.Context(), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// DeletePayrollRun handles DELETE /api/runs/:runId
func (h *Handlers) DeletePayrollRun(c *gin.Context) {
	if err := h.runService.DeletePayrollRun(c.Request.Context(), actorFrom(c), c.Param("runId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EditPeriodRequest is the body of PUT /api/runs/:runId/period
type EditPeriodRequest struct {
	Period string `json:"period" binding:"required"`
}

// EditPayrollPeriod handles PUT /api/runs/:runId/period
func (h *Handlers) EditPayrollPeriod(c *gin.Context) {
	var req EditPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	run, err := h.runService.EditPayrollPeriod(c.Request.Context(), actorFrom(c), c.Param("runId"), req.Period)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// PublishDraftForApproval handles POST /api/runs/:runId/publish
func (h *Handlers) PublishDraftForApproval(c *gin.Context) {
	run, err := h.runService.PublishDraftForApproval(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// ReasonRequest carries the reason body of reject/freeze/unfreeze calls
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func bindReason(c *gin.Context) (string, bool) {
	var req ReasonRequest
	// An empty body is allowed here; mandatory-reason rules are the
	// services' concern.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return "", false
		}
	}
	return req.Reason, true
}

// ApproveByPayrollManager handles POST /api/runs/:runId/manager-approval
func (h *Handlers) ApproveByPayrollManager(c *gin.Context) {
	run, err := h.runService.ApproveByPayrollManager(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// RejectByPayrollManager handles POST /api/runs/:runId/manager-rejection
func (h *Handlers) RejectByPayrollManager(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	run, err := h.runService.RejectByPayrollManager(c.Request.Context(), actorFrom(c), c.Param("runId"), reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// ApproveByFinanceStaff handles POST /api/runs/:runId/finance-approval
func (h *Handlers) ApproveByFinanceStaff(c *gin.Context) {
	run, err := h.runService.ApproveByFinanceStaff(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// RejectByFinanceStaff handles POST /api/runs/:runId/finance-rejection
func (h *Handlers) RejectByFinanceStaff(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	run, err := h.runService.RejectByFinanceStaff(c.Request.Context(), actorFrom(c), c.Param("runId"), reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// FreezePayroll handles POST /api/runs/:runId/freeze
func (h *Handlers) FreezePayroll(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	run, err := h.runService.FreezePayroll(c.Request.Context(), actorFrom(c), c.Param("runId"), reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// UnfreezePayroll handles POST /api/runs/:runId/unfreeze
func (h *Handlers) UnfreezePayroll(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	run, err := h.runService.UnfreezePayroll(c.Request.Context(), actorFrom(c), c.Param("runId"), reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// MarkPayrollAsPaid handles POST /api/runs/:runId/paid
func (h *Handlers) MarkPayrollAsPaid(c *gin.Context) {
	run, err := h.runService.MarkPayrollAsPaid(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// GetApprovals handles GET /api/runs/:runId/approvals
func (h *Handlers) GetApprovals(c *gin.Context) {
	approvals, err := h.runService.GetApprovalsByRunID(c.Request.Context(), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, approvals)
}

// ReviewPayrollDraft handles GET /api/runs/:runId/review
func (h *Handlers) ReviewPayrollDraft(c *gin.Context) {
	review, err := h.runService.ReviewPayrollDraft(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, review)
}

// GetPayrollForManagerReview handles GET /api/runs/:runId/manager-review
func (h *Handlers) GetPayrollForManagerReview(c *gin.Context) {
	review, err := h.runService.GetPayrollForManagerReview(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, review)
}

// GetPayrollForFinanceReview handles GET /api/runs/:runId/finance-review
func (h *Handlers) GetPayrollForFinanceReview(c *gin.Context) {
	review, err := h.runService.GetPayrollForFinanceReview(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, review)
}

// FlagExceptionsResponse pairs the refreshed run with the new exception set
type FlagExceptionsResponse struct {
	Run        *entity.PayrollRun  `json:"run"`
	Exceptions []*entity.Exception `json:"exceptions"`
}

// FlagPayrollExceptions handles POST /api/runs/:runId/exceptions
func (h *Handlers) FlagPayrollExceptions(c *gin.Context) {
	run, exceptions, err := h.exceptionService.FlagPayrollExceptions(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, FlagExceptionsResponse{Run: run, Exceptions: exceptions})
}

// GetPayrollRunExceptions handles GET /api/runs/:runId/exceptions
func (h *Handlers) GetPayrollRunExceptions(c *gin.Context) {
	exceptions, err := h.exceptionService.GetPayrollRunExceptions(c.Request.Context(), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, exceptions)
}

// ResolveExceptionRequest is the body of POST /api/runs/:runId/exceptions/resolve
type ResolveExceptionRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Note       string `json:"note"`
}

// ResolveException handles POST /api/runs/:runId/exceptions/resolve
func (h *Handlers) ResolveException(c *gin.Context) {
	var req ResolveExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	run, err := h.exceptionService.ResolveException(c.Request.Context(), actorFrom(c), c.Param("runId"), req.EmployeeID, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// CreateAdjustmentRequest is the body of POST /api/runs/:runId/adjustments
type CreateAdjustmentRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Type       string `json:"type" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	Reason     string `json:"reason"`
}

// CreatePayrollAdjustment handles POST /api/runs/:runId/adjustments
func (h *Handlers) CreatePayrollAdjustment(c *gin.Context) {
	var req CreateAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	adjustment, err := h.adjustmentService.CreatePayrollAdjustment(
		c.Request.Context(), actorFrom(c), c.Param("runId"),
		req.EmployeeID, entity.AdjustmentType(req.Type), req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, adjustment)
}

// GetPayrollAdjustments handles GET /api/runs/:runId/adjustments
func (h *Handlers) GetPayrollAdjustments(c *gin.Context) {
	adjustments, err := h.adjustmentService.GetPayrollAdjustments(c.Request.Context(), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, adjustments)
}

// GeneratePayslips handles POST /api/runs/:runId/payslips
func (h *Handlers) GeneratePayslips(c *gin.Context) {
	batch, err := h.payslipService.GeneratePayslips(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, batch)
}

// GetPayslipBatch handles GET /api/runs/:runId/payslips
func (h *Handlers) GetPayslipBatch(c *gin.Context) {
	batch, err := h.payslipService.GetPayslipBatch(c.Request.Context(), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, batch)
}

// DistributePayslips handles POST /api/runs/:runId/payslips/distribute
func (h *Handlers) DistributePayslips(c *gin.Context) {
	batch, err := h.payslipService.DistributePayslips(c.Request.Context(), actorFrom(c), c.Param("runId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, batch)
}

// PreRunApprovalsResponse reports pending grant counts for an entity
type PreRunApprovalsResponse struct {
	Complete bool `json:"complete"`
	Pending  int  `json:"pending"`
}

// CheckPreRunApprovalsComplete handles GET /api/entities/:entity/pre-run-approvals
func (h *Handlers) CheckPreRunApprovalsComplete(c *gin.Context) {
	complete, pending, err := h.runService.CheckPreRunApprovalsComplete(c.Request.Context(), c.Param("entity"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, PreRunApprovalsResponse{Complete: complete, Pending: pending})
}

// GetSuggestedPayrollPeriod handles GET /api/entities/:entity/suggested-period
func (h *Handlers) GetSuggestedPayrollPeriod(c *gin.Context) {
	period, err := h.runService.GetSuggestedPayrollPeriod(c.Request.Context(), c.Param("entity"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"period": period})
}

// ValidatePeriodRequest is the body of POST /api/periods/validate
type ValidatePeriodRequest struct {
	Period string `json:"period" binding:"required"`
}

// ValidatePayrollPeriod handles POST /api/periods/validate
func (h *Handlers) ValidatePayrollPeriod(c *gin.Context) {
	var req ValidatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	if err := h.runService.ValidatePayrollPeriod(req.Period); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"period": req.Period, "valid": true})
}

func grantKind(c *gin.Context) (entity.GrantKind, bool) {
	switch c.Param("kind") {
	case "signing-bonuses":
		return entity.GrantSigningBonus, true
	case "benefits":
		return entity.GrantBenefit, true
	default:
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "unknown grant kind"})
		return "", false
	}
}

func grantID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid grant id"})
		return 0, false
	}
	return id, true
}

// GrantRequest is the body of grant create/edit calls
type GrantRequest struct {
	EmployeeID  string `json:"employee_id"`
	Entity      string `json:"entity"`
	Amount      string `json:"amount" binding:"required"`
	PaymentDate string `json:"payment_date" binding:"required"`
}

func (r GrantRequest) paymentDate() (time.Time, error) {
	return time.Parse("2006-01-02", r.PaymentDate)
}

// CreateGrant handles POST /api/grants/:kind
func (h *Handlers) CreateGrant(c *gin.Context) {
	kind, ok := grantKind(c)
	if !ok {
		return
	}
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	date, err := req.paymentDate()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "payment_date must be YYYY-MM-DD"})
		return
	}

	grant, err := h.grantService.CreateGrant(c.Request.Context(), actorFrom(c), kind,
		req.EmployeeID, req.Entity, req.Amount, date)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, grant)
}

// EditGrant handles PUT /api/grants/:kind/:id
func (h *Handlers) EditGrant(c *gin.Context) {
	kind, ok := grantKind(c)
	if !ok {
		return
	}
	id, ok := grantID(c)
	if !ok {
		return
	}
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	date, err := req.paymentDate()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "payment_date must be YYYY-MM-DD"})
		return
	}

	grant, err := h.grantService.EditGrant(c.Request.Context(), actorFrom(c), kind, id, req.Amount, date)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, grant)
}

// ApproveGrant handles POST /api/grants/:kind/:id/approval
func (h *Handlers) ApproveGrant(c *gin.Context) {
	kind, ok := grantKind(c)
	if !ok {
		return
	}
	id, ok := grantID(c)
	if !ok {
		return
	}
	grant, err := h.grantService.ApproveGrant(c.Request.Context(), actorFrom(c), kind, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, grant)
}

// RejectGrant handles POST /api/grants/:kind/:id/rejection
func (h *Handlers) RejectGrant(c *gin.Context) {
	kind, ok := grantKind(c)
	if !ok {
		return
	}
	id, ok := grantID(c)
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	grant, err := h.grantService.RejectGrant(c.Request.Context(), actorFrom(c), kind, id, reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, grant)
}

// GetPendingGrants handles GET /api/grants/:kind/pending
func (h *Handlers) GetPendingGrants(c *gin.Context) {
	kind, ok := grantKind(c)
	if !ok {
		return
	}
	grants, err := h.grantService.GetPendingGrants(c.Request.Context(), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, grants)
}

// GetGrantByID handles GET /api/grants/:kind/:id
func (h *Handlers) GetGrantByID(c *gin.Context) {
	kind, ok := grantKind(c)
	if !ok {
		return
	}
	id, ok := grantID(c)
	if !ok {
		return
	}
	grant, err := h.grantService.GetGrantByID(c.Request.Context(), kind, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, grant)
}
