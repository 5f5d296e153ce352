package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBClient files incidents into the shared alerts table consumed by
// the incident desk.
type DynamoDBClient struct {
	svc   dynamoAPI
	table string
}

func NewDynamoDBClient(cfg aws.Config, table string) *DynamoDBClient {
	return &DynamoDBClient{svc: dynamodb.NewFromConfig(cfg), table: table}
}

// Alert represents an alert stored in DynamoDB
type Alert struct {
	AlertID        string `dynamodbav:"alertId"`
	MeterID        string `dynamodbav:"meterId"`
	HomeID         string `dynamodbav:"homeId"`
	Timestamp      int64  `dynamodbav:"timestamp"`
	Severity       string `dynamodbav:"severity"`
	Classification string `dynamodbav:"type"`
	Message        string `dynamodbav:"message"`
	Acknowledged   bool   `dynamodbav:"acknowledged"`
}

func (c *DynamoDBClient) ReportIncident(ctx context.Context, inc domain.Incident) error {
	alert := Alert{
		AlertID:        "incident-" + uuid.NewString(),
		MeterID:        inc.MeterID,
		HomeID:         inc.HomeID,
		Timestamp:      time.Now().Unix(),
		Severity:       inc.AlertSeverity(),
		Classification: inc.Classification,
		Message:        inc.Description,
	}

	item, err := attributevalue.MarshalMap(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	_, err = c.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}
