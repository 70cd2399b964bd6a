// Package notification delivers payslip-ready notices to employees during
// distribution. The Lark adapter sends IM messages; the log notifier stands
// in when no IM channel is configured.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// LarkConfig holds Lark messaging configuration
type LarkConfig struct {
	AppID     string
	AppSecret string
}

// LarkNotifier sends payslip notices over Lark IM, addressing employees by
// their user id in the tenant.
type LarkNotifier struct {
	client *lark.Client
	logger *zap.Logger
}

// NewLarkNotifier creates a new Lark notifier
func NewLarkNotifier(cfg LarkConfig, logger *zap.Logger) *LarkNotifier {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)

	return &LarkNotifier{
		client: client,
		logger: logger,
	}
}

// NotifyPayslipReady sends a text notice that the employee's payslip for the
// period is available.
func (n *LarkNotifier) NotifyPayslipReady(ctx context.Context, employeeID, runID, period string) error {
	text := fmt.Sprintf("Your payslip for %s is ready (payroll run %s).", period, runID)
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to build message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("user_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(employeeID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.client.Im.Message.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send payslip notice",
			zap.String("employee_id", employeeID),
			zap.String("run_id", runID),
			zap.Error(err))
		return fmt.Errorf("failed to send payslip notice: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("Lark API returned failure",
			zap.String("employee_id", employeeID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	n.logger.Info("Payslip notice sent",
		zap.String("employee_id", employeeID),
		zap.String("run_id", runID))
	return nil
}
