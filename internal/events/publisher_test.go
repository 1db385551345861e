package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/amillerrr/courtside/pkg/models"
)

// Mock SQS client
type mockSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (m *mockSQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func TestNewPublisher_RequiresQueue(t *testing.T) {
	if _, err := NewPublisher(&mockSQSClient{}, "", testLogger()); err == nil {
		t.Error("expected error for empty queue URL")
	}
}

func TestPublisher_GameUploaded(t *testing.T) {
	client := &mockSQSClient{}
	p, err := NewPublisher(client, "https://sqs.test/queue", testLogger())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	p.now = func() time.Time { return time.Date(2024, 3, 16, 1, 2, 3, 0, time.UTC) }

	err = p.GameUploaded(context.Background(), &models.Game{
		GameID:           "g1",
		TeamID:           "t1",
		Owner:            "coach",
		VideoStoragePath: "videos/coach/team-t1/game-g1/game.mp4",
		DurationSeconds:  2700,
	})
	if err != nil {
		t.Fatalf("GameUploaded() error = %v", err)
	}

	if got := aws.ToString(client.input.QueueUrl); got != "https://sqs.test/queue" {
		t.Errorf("QueueUrl = %s", got)
	}
	if got := aws.ToString(client.input.MessageAttributes["eventType"].StringValue); got != EventGameVideoUploaded {
		t.Errorf("eventType = %s, want %s", got, EventGameVideoUploaded)
	}

	var event GameUploaded
	if err := json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &event); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if event.GameID != "g1" || event.TeamID != "t1" || event.DurationSeconds != 2700 {
		t.Errorf("event = %+v", event)
	}
	if event.OccurredAt != "2024-03-16T01:02:03Z" {
		t.Errorf("OccurredAt = %s", event.OccurredAt)
	}
}

func TestPublisher_GameUploaded_Error(t *testing.T) {
	p, _ := NewPublisher(&mockSQSClient{err: errors.New("queue does not exist")}, "https://sqs.test/queue", testLogger())

	if err := p.GameUploaded(context.Background(), &models.Game{GameID: "g1"}); err == nil {
		t.Error("expected error")
	}
}
