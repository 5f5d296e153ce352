package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Lambda handler behind the core's AuditTicketer. Invoked asynchronously
// once per WARNING or CRITICAL zone of a reconciliation run.

var (
	dynamoClient *dynamodb.Client
	snsClient    *sns.Client
	ticketTable  string
	topicArn     string
)

// TicketRequest is the payload sent by the reconciliation engine.
type TicketRequest struct {
	ZoneID           string  `json:"zone_id"`
	Severity         string  `json:"severity"`
	EstimatedLossKWh float64 `json:"estimated_loss_kwh"`
}

// Ticket is the stored audit ticket.
type Ticket struct {
	TicketID         string  `dynamodbav:"ticketId"`
	ZoneID           string  `dynamodbav:"zoneId"`
	Severity         string  `dynamodbav:"severity"`
	EstimatedLossKWh float64 `dynamodbav:"estimatedLossKwh"`
	Status           string  `dynamodbav:"status"`
	OpenedAt         int64   `dynamodbav:"openedAt"`
}

func init() {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		panic(fmt.Sprintf("unable to load SDK config: %v", err))
	}

	dynamoClient = dynamodb.NewFromConfig(cfg)
	snsClient = sns.NewFromConfig(cfg)
	ticketTable = os.Getenv("TICKET_TABLE")
	if ticketTable == "" {
		ticketTable = "AuditTickets"
	}
	topicArn = os.Getenv("SNS_TOPIC_ARN")
}

func validate(req TicketRequest) error {
	if req.ZoneID == "" {
		return errors.New("zone_id is required")
	}
	switch req.Severity {
	case "WARNING", "CRITICAL":
		return nil
	}
	return fmt.Errorf("severity %q does not warrant a ticket", req.Severity)
}

// Handler is the Lambda entry point
func Handler(ctx context.Context, req TicketRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	now := time.Now()
	ticket := Ticket{
		TicketID:         fmt.Sprintf("audit-%s-%d", req.ZoneID, now.UnixNano()),
		ZoneID:           req.ZoneID,
		Severity:         req.Severity,
		EstimatedLossKWh: req.EstimatedLossKWh,
		Status:           "OPEN",
		OpenedAt:         now.Unix(),
	}

	item, err := attributevalue.MarshalMap(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}
	if _, err := dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ticketTable),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to store ticket: %w", err)
	}
	fmt.Printf("Opened %s ticket %s for zone %s\n", ticket.Severity, ticket.TicketID, ticket.ZoneID)

	if req.Severity != "CRITICAL" || topicArn == "" {
		return nil
	}
	_, err = snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicArn),
		Subject:  aws.String(fmt.Sprintf("Critical energy loss in zone %s", req.ZoneID)),
		Message: aws.String(fmt.Sprintf("Reconciliation estimates %.1f kWh unaccounted for in zone %s. Ticket %s opened.",
			req.EstimatedLossKWh, req.ZoneID, ticket.TicketID)),
	})
	if err != nil {
		fmt.Printf("Error sending SNS notification: %v\n", err)
	}
	return nil
}

func main() {
	lambda.Start(Handler)
}
