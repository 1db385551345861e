package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/amillerrr/courtside/pkg/models"
)

const (
	metadataSK = "METADATA"
	gsi1Name   = "GSI1"
)

// DynamoDBAPI is the subset of the DynamoDB client the repository uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Repository stores teams, players, games and markers in one DynamoDB table.
type Repository struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
}

// NewRepository creates a Repository over an existing DynamoDB client.
func NewRepository(client DynamoDBAPI, tableName string) (*Repository, error) {
	if tableName == "" {
		return nil, errors.New("DynamoDB table name is required")
	}
	return &Repository{
		client:    client,
		tableName: tableName,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *Repository) timestamp() string {
	return r.now().Format(time.RFC3339)
}

func teamPK(id string) string   { return "TEAM#" + id }
func playerPK(id string) string { return "PLAYER#" + id }
func gamePK(id string) string   { return "GAME#" + id }
func markerPK(id string) string { return "MARKER#" + id }

func itemKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// putNew writes an item that must not already exist.
func (r *Repository) putNew(ctx context.Context, item any, label string) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", label, err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: %s", models.ErrAlreadyExists, label)
		}
		return fmt.Errorf("failed to create %s: %w", label, err)
	}
	return nil
}

// getItem loads one item by partition key into out.
func (r *Repository) getItem(ctx context.Context, pk string, out any) error {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(pk),
	})
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", pk, err)
	}
	if result.Item == nil {
		return models.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", pk, err)
	}
	return nil
}

// queryIndex collects every item under a GSI1 partition.
func (r *Repository) queryIndex(ctx context.Context, gsi1pk string, forward bool, out any) error {
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(gsi1Name),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: gsi1pk},
		},
		ScanIndexForward: aws.Bool(forward),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", gsi1pk, err)
		}
		items = append(items, page.Items...)
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", gsi1pk, err)
	}
	return nil
}

// Teams

// CreateTeam stores a new team owned by team.Owner.
func (r *Repository) CreateTeam(ctx context.Context, team *models.Team) (*models.Team, error) {
	now := r.timestamp()
	t := *team
	t.PK = teamPK(t.TeamID)
	t.SK = metadataSK
	t.GSI1PK = fmt.Sprintf("OWNER#%s#TEAMS", t.Owner)
	t.GSI1SK = fmt.Sprintf("%s#%s", now, t.TeamID)
	t.CreatedAt = now

	if err := r.putNew(ctx, &t, "team"); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTeam retrieves a team by ID.
func (r *Repository) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	if err := r.getItem(ctx, teamPK(teamID), &team); err != nil {
		return nil, err
	}
	return &team, nil
}

// ListTeams returns an owner's teams, oldest first.
func (r *Repository) ListTeams(ctx context.Context, owner string) ([]models.Team, error) {
	var teams []models.Team
	if err := r.queryIndex(ctx, fmt.Sprintf("OWNER#%s#TEAMS", owner), true, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// Players

// CreatePlayer stores a roster entry.
func (r *Repository) CreatePlayer(ctx context.Context, player *models.Player) (*models.Player, error) {
	p := *player
	p.PK = playerPK(p.PlayerID)
	p.SK = metadataSK
	p.GSI1PK = fmt.Sprintf("TEAM#%s#PLAYERS", p.TeamID)
	number := 0
	if p.Number != nil {
		number = *p.Number
	}
	p.GSI1SK = fmt.Sprintf("%03d#%s", number, p.PlayerID)
	p.CreatedAt = r.timestamp()

	if err := r.putNew(ctx, &p, "player"); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPlayer retrieves a player by ID.
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	var player models.Player
	if err := r.getItem(ctx, playerPK(playerID), &player); err != nil {
		return nil, err
	}
	return &player, nil
}

// ListPlayers returns a team's roster ordered by jersey number.
func (r *Repository) ListPlayers(ctx context.Context, teamID string) ([]models.Player, error) {
	var players []models.Player
	if err := r.queryIndex(ctx, fmt.Sprintf("TEAM#%s#PLAYERS", teamID), true, &players); err != nil {
		return nil, err
	}
	return players, nil
}

// Games

// CreateGame stores a placeholder game record.
func (r *Repository) CreateGame(ctx context.Context, game *models.Game) (*models.Game, error) {
	if !game.UploadStatus.IsValid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, game.UploadStatus)
	}

	now := r.timestamp()
	g := *game
	g.PK = gamePK(g.GameID)
	g.SK = metadataSK
	g.GSI1PK = fmt.Sprintf("TEAM#%s#GAMES", g.TeamID)
	g.GSI1SK = fmt.Sprintf("%s#%s#%s", g.Date, now, g.GameID)
	g.CreatedAt = now
	g.UpdatedAt = now

	if err := r.putNew(ctx, &g, "game"); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGame retrieves a game by ID.
func (r *Repository) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	var game models.Game
	if err := r.getItem(ctx, gamePK(gameID), &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// ListGames returns a team's games, most recent date first.
func (r *Repository) ListGames(ctx context.Context, teamID string) ([]models.Game, error) {
	var games []models.Game
	if err := r.queryIndex(ctx, fmt.Sprintf("TEAM#%s#GAMES", teamID), false, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// UpdateGame applies u in a single conditional write and returns the stored record.
func (r *Repository) UpdateGame(ctx context.Context, gameID string, u models.GameUpdate) (*models.Game, error) {
	if u.ExpectStatus != "" && u.UploadStatus != nil && !u.ExpectStatus.CanTransitionTo(*u.UploadStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, u.ExpectStatus, *u.UploadStatus)
	}

	expr := buildGameUpdate(u, r.timestamp())

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 itemKey(gamePK(gameID)),
		UpdateExpression:                    aws.String(expr.update),
		ConditionExpression:                 aws.String(expr.condition),
		ExpressionAttributeNames:            expr.names,
		ExpressionAttributeValues:           expr.values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if condErr.Item == nil {
				return nil, models.ErrNotFound
			}
			var current models.Game
			if uerr := attributevalue.UnmarshalMap(condErr.Item, &current); uerr == nil {
				return nil, fmt.Errorf("%w: %s", models.ErrStatusConflict, current.UploadStatus)
			}
			return nil, models.ErrStatusConflict
		}
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	var game models.Game
	if err := attributevalue.UnmarshalMap(result.Attributes, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}
	return &game, nil
}

type updateExpr struct {
	update    string
	condition string
	names     map[string]string
	values    map[string]types.AttributeValue
}

// buildGameUpdate renders u as a SET expression in a fixed field order.
func buildGameUpdate(u models.GameUpdate, now string) updateExpr {
	e := updateExpr{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
	sets := []string{"updated_at = :updated_at"}
	e.values[":updated_at"] = &types.AttributeValueMemberS{Value: now}

	setString := func(attr string, v *string) {
		if v == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = :%s", attr, attr))
		e.values[":"+attr] = &types.AttributeValueMemberS{Value: *v}
	}

	if u.UploadStatus != nil {
		sets = append(sets, "#status = :status")
		e.names["#status"] = "upload_status"
		e.values[":status"] = &types.AttributeValueMemberS{Value: string(*u.UploadStatus)}
	}
	setString("video_storage_path", u.VideoStoragePath)
	setString("video_playback_url", u.VideoPlaybackURL)
	setString("thumbnail_storage_path", u.ThumbnailStoragePath)
	setString("thumbnail_playback_url", u.ThumbnailPlaybackURL)
	if u.DurationSeconds != nil {
		sets = append(sets, "duration_seconds = :duration_seconds")
		e.values[":duration_seconds"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", *u.DurationSeconds)}
	}
	setString("error_message", u.ErrorMessage)

	e.update = "SET " + strings.Join(sets, ", ")
	e.condition = "attribute_exists(pk)"
	if u.ExpectStatus != "" {
		e.names["#status"] = "upload_status"
		e.values[":expected_status"] = &types.AttributeValueMemberS{Value: string(u.ExpectStatus)}
		e.condition += " AND #status = :expected_status"
	}
	if len(e.names) == 0 {
		e.names = nil
	}
	return e
}

// Markers

// CreateMarker stores a marker on a game.
func (r *Repository) CreateMarker(ctx context.Context, marker *models.Marker) (*models.Marker, error) {
	m := *marker
	m.PK = markerPK(m.MarkerID)
	m.SK = metadataSK
	m.GSI1PK = fmt.Sprintf("GAME#%s#MARKERS", m.GameID)
	m.GSI1SK = fmt.Sprintf("%012.3f#%s", m.Timestamp, m.MarkerID)
	m.CreatedAt = r.timestamp()

	if err := r.putNew(ctx, &m, "marker"); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMarker retrieves a marker by ID.
func (r *Repository) GetMarker(ctx context.Context, markerID string) (*models.Marker, error) {
	var marker models.Marker
	if err := r.getItem(ctx, markerPK(markerID), &marker); err != nil {
		return nil, err
	}
	return &marker, nil
}

// ListMarkers returns a game's markers in playback order.
func (r *Repository) ListMarkers(ctx context.Context, gameID string) ([]models.Marker, error) {
	var markers []models.Marker
	if err := r.queryIndex(ctx, fmt.Sprintf("GAME#%s#MARKERS", gameID), true, &markers); err != nil {
		return nil, err
	}
	return markers, nil
}

// DeleteMarker removes a marker.
func (r *Repository) DeleteMarker(ctx context.Context, markerID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(markerPK(markerID)),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to delete marker: %w", err)
	}
	return nil
}
