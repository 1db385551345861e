package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/amillerrr/courtside/internal/media"
	"github.com/amillerrr/courtside/internal/storage"
	"github.com/amillerrr/courtside/pkg/models"
)

// fakeStore keeps games in memory and enforces status transitions like the repository.
type fakeStore struct {
	mu        sync.Mutex
	games     map[string]models.Game
	creates   int
	updates   []models.GameUpdate
	createErr error
	updateErr error
	// failUpdateOnCall makes only the nth update (1-based) fail.
	failUpdateOnCall int
}

func newFakeStore() *fakeStore {
	return &fakeStore{games: map[string]models.Game{}}
}

func (s *fakeStore) CreateGame(ctx context.Context, game *models.Game) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return nil, s.createErr
	}
	g := *game
	s.games[g.GameID] = g
	return &g, nil
}

func (s *fakeStore) UpdateGame(ctx context.Context, gameID string, u models.GameUpdate) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	if s.updateErr != nil || s.failUpdateOnCall == len(s.updates) {
		return nil, errors.Join(s.updateErr, errors.New("update rejected"))
	}
	g, ok := s.games[gameID]
	if !ok {
		return nil, models.ErrNotFound
	}
	next, err := g.Apply(u)
	if err != nil {
		return nil, err
	}
	s.games[gameID] = next
	return &next, nil
}

// ctxStore fails calls made on a done context, like the DynamoDB client.
type ctxStore struct {
	*fakeStore
}

func (s ctxStore) CreateGame(ctx context.Context, game *models.Game) (*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeStore.CreateGame(ctx, game)
}

func (s ctxStore) UpdateGame(ctx context.Context, gameID string, u models.GameUpdate) (*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeStore.UpdateGame(ctx, gameID, u)
}

func (s *fakeStore) only() models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		return g
	}
	return models.Game{}
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates + len(s.updates)
}

// fakeObjects reads uploads in chunks, reporting progress like a real store.
type fakeObjects struct {
	mu        sync.Mutex
	uploads   map[string]int64
	calls     int
	chunk     int64
	failAfter int64 // fail the video upload after this many bytes, when > 0
	videoErr  error
	thumbErr  error
	resolve   func(key string) (string, error)
	// onVideoDone runs after the video upload returns successfully.
	onVideoDone func()
	// stall makes the video upload wait for its context to end.
	stall bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploads: map[string]int64{}, chunk: 1 << 20}
}

func (o *fakeObjects) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress storage.ProgressFunc) error {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()

	isVideo := strings.HasPrefix(key, "videos/")
	if !isVideo && o.thumbErr != nil {
		return o.thumbErr
	}
	if isVideo && o.videoErr != nil && o.failAfter == 0 {
		return o.videoErr
	}
	if isVideo && o.stall {
		<-ctx.Done()
		return ctx.Err()
	}

	var sent int64
	buf := make([]byte, o.chunk)
	for {
		n, err := body.Read(buf)
		sent += int64(n)
		if n > 0 && onProgress != nil {
			onProgress(sent, size)
		}
		if isVideo && o.failAfter > 0 && sent >= o.failAfter {
			return errors.New("connection reset by peer")
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	o.mu.Lock()
	o.uploads[key] = sent
	o.mu.Unlock()
	if isVideo && o.onVideoDone != nil {
		o.onVideoDone()
	}
	return nil
}

func (o *fakeObjects) ResolvePlaybackURL(ctx context.Context, key string) (string, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	if o.resolve != nil {
		return o.resolve(key)
	}
	return "https://cdn.example.com/" + key, nil
}

func (o *fakeObjects) totalCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type fakeExtractor struct {
	md    media.Metadata
	calls int
	mu    sync.Mutex
}

func (e *fakeExtractor) Extract(ctx context.Context, path string) media.Metadata {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.md
}

type fakeNotifier struct {
	mu    sync.Mutex
	games []*models.Game
	err   error
}

func (n *fakeNotifier) GameUploaded(ctx context.Context, game *models.Game) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.games = append(n.games, game)
	return n.err
}
