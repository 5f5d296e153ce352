package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

type lambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaClient opens audit tickets through the ticketing function. Calls are
// asynchronous: the core does not track ticket lifecycle.
type LambdaClient struct {
	svc      lambdaAPI
	function string
}

func NewLambdaClient(cfg aws.Config, function string) *LambdaClient {
	return &LambdaClient{svc: lambda.NewFromConfig(cfg), function: function}
}

type auditTicketPayload struct {
	ZoneID           string  `json:"zone_id"`
	Severity         string  `json:"severity"`
	EstimatedLossKWh float64 `json:"estimated_loss_kwh"`
}

func (c *LambdaClient) OpenAuditTicket(ctx context.Context, t domain.AuditTicket) error {
	payload, err := json.Marshal(auditTicketPayload{
		ZoneID:           t.ZoneID,
		Severity:         string(t.Severity),
		EstimatedLossKWh: t.EstimatedLossKWh,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	result, err := c.svc.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.function),
		Payload:        payload,
		InvocationType: types.InvocationTypeEvent,
	})
	if err != nil {
		return fmt.Errorf("failed to invoke Lambda: %w", err)
	}
	if result.FunctionError != nil {
		return fmt.Errorf("Lambda function error: %s", *result.FunctionError)
	}
	return nil
}
