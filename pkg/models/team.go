package models

// Team is a coach's team.
type Team struct {
	PK     string `dynamodbav:"pk" json:"-"`
	SK     string `dynamodbav:"sk" json:"-"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty" json:"-"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty" json:"-"`

	TeamID      string `dynamodbav:"team_id" json:"id"`
	Owner       string `dynamodbav:"owner" json:"-"`
	Name        string `dynamodbav:"name" json:"name" validate:"required,max=120"`
	Description string `dynamodbav:"description,omitempty" json:"description,omitempty" validate:"max=1000"`
	Sport       string `dynamodbav:"sport" json:"sport"`
	Season      string `dynamodbav:"season,omitempty" json:"season,omitempty"`
	AgeGroup    string `dynamodbav:"age_group,omitempty" json:"ageGroup,omitempty"`
	IsActive    bool   `dynamodbav:"is_active" json:"isActive"`
	CreatedAt   string `dynamodbav:"created_at" json:"createdAt"`
}

// Player is a roster entry on a team.
type Player struct {
	PK     string `dynamodbav:"pk" json:"-"`
	SK     string `dynamodbav:"sk" json:"-"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty" json:"-"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty" json:"-"`

	PlayerID  string `dynamodbav:"player_id" json:"id"`
	TeamID    string `dynamodbav:"team_id" json:"teamId"`
	Owner     string `dynamodbav:"owner" json:"-"`
	Name      string `dynamodbav:"name" json:"name" validate:"required,max=120"`
	Number    *int   `dynamodbav:"number" json:"number" validate:"required,min=0,max=99"`
	Position  string `dynamodbav:"position" json:"position" validate:"required,max=32"`
	Active    bool   `dynamodbav:"active" json:"active"`
	Height    string `dynamodbav:"height,omitempty" json:"height,omitempty"`
	Weight    int    `dynamodbav:"weight,omitempty" json:"weight,omitempty" validate:"min=0"`
	Grade     string `dynamodbav:"grade,omitempty" json:"grade,omitempty"`
	CreatedAt string `dynamodbav:"created_at" json:"createdAt"`
}

// Marker types.
const (
	MarkerPositive    = "positive"
	MarkerImprovement = "improvement"
	MarkerNeutral     = "neutral"
)

// Marker is a timestamped annotation on a game video.
type Marker struct {
	PK     string `dynamodbav:"pk" json:"-"`
	SK     string `dynamodbav:"sk" json:"-"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty" json:"-"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty" json:"-"`

	MarkerID    string  `dynamodbav:"marker_id" json:"id"`
	TeamID      string  `dynamodbav:"team_id" json:"teamId"`
	GameID      string  `dynamodbav:"game_id" json:"gameId"`
	PlayerID    string  `dynamodbav:"player_id" json:"playerId" validate:"required"`
	Owner       string  `dynamodbav:"owner" json:"-"`
	Timestamp   float64 `dynamodbav:"timestamp" json:"timestamp" validate:"min=0"`
	Description string  `dynamodbav:"description" json:"description" validate:"required,max=2000"`
	Type        string  `dynamodbav:"type" json:"type" validate:"required,oneof=positive improvement neutral"`
	Category    string  `dynamodbav:"category" json:"category" validate:"max=32"`
	Priority    string  `dynamodbav:"priority" json:"priority" validate:"omitempty,oneof=low medium high"`
	CreatedAt   string  `dynamodbav:"created_at" json:"createdAt"`
}
