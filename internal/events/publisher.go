package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/amillerrr/courtside/pkg/models"
)

// EventGameVideoUploaded is published after a game's video is finalized.
const EventGameVideoUploaded = "game.video.uploaded"

const defaultSendTimeout = 10 * time.Second

var tracer = otel.Tracer("courtside-events")

// SQSAPI is the subset of the SQS client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// GameUploaded is the body of a game.video.uploaded message.
type GameUploaded struct {
	Type             string `json:"type"`
	GameID           string `json:"gameId"`
	TeamID           string `json:"teamId"`
	Owner            string `json:"owner"`
	VideoStoragePath string `json:"videoStoragePath"`
	ThumbnailPath    string `json:"thumbnailStoragePath,omitempty"`
	DurationSeconds  int    `json:"duration"`
	OccurredAt       string `json:"occurredAt"`
}

// Publisher sends upload events to an SQS queue.
type Publisher struct {
	client   SQSAPI
	queueURL string
	log      *slog.Logger
	now      func() time.Time
}

// NewPublisher creates a Publisher for queueURL.
func NewPublisher(client SQSAPI, queueURL string, log *slog.Logger) (*Publisher, error) {
	if queueURL == "" {
		return nil, errors.New("events queue URL is required")
	}
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// GameUploaded publishes a game.video.uploaded event for game.
func (p *Publisher) GameUploaded(ctx context.Context, game *models.Game) error {
	ctx, span := tracer.Start(ctx, "publish-game-uploaded")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	defer cancel()

	body, err := json.Marshal(GameUploaded{
		Type:             EventGameVideoUploaded,
		GameID:           game.GameID,
		TeamID:           game.TeamID,
		Owner:            game.Owner,
		VideoStoragePath: game.VideoStoragePath,
		ThumbnailPath:    game.ThumbnailStoragePath,
		DurationSeconds:  game.DurationSeconds,
		OccurredAt:       p.now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	attrs := map[string]types.MessageAttributeValue{
		"eventType": {DataType: aws.String("String"), StringValue: aws.String(EventGameVideoUploaded)},
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send event: %w", err)
	}

	p.log.InfoContext(ctx, "Upload event published",
		"gameId", game.GameID,
		"messageId", aws.ToString(out.MessageId),
	)
	return nil
}

// NewSQSClient builds an SQS client, pointing it at endpoint when one is set.
func NewSQSClient(awsCfg aws.Config, endpoint string) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
