package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-guardian-notification-service/internal/pipeline"
	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, aud notify.Audience) ([]string, error) {
	args := m.Called(ctx, aud)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) TokensForUsers(ctx context.Context, userIDs []string) (map[string][]string, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]string), args.Error(1)
}
func (m *mockTokenStore) RegisterToken(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}
func (m *mockTokenStore) UnregisterToken(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}

type mockCredentials struct {
	mock.Mock
}

func (m *mockCredentials) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, tokens []string, payload notify.Payload, bearer string) notify.Result {
	args := m.Called(ctx, tokens, payload, bearer)
	return args.Get(0).(notify.Result)
}

// --- Tests ---

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	job := &pipeline.BulkJob{Titulo: "Aviso", Mensaje: "Junta mañana", GrupoID: "G1"}

	t.Run("Runs the full pipeline for a valid job", func(t *testing.T) {
		resolver := new(mockResolver)
		store := new(mockTokenStore)
		credentials := new(mockCredentials)
		dispatcher := new(mockDispatcher)

		resolver.On("Resolve", mock.Anything, notify.GroupAudience("G1")).Return([]string{"U1"}, nil)
		store.On("TokensForUsers", mock.Anything, []string{"U1"}).
			Return(map[string][]string{"U1": {"tok-a"}}, nil)
		credentials.On("Token", mock.Anything).Return("bearer-1", nil)
		dispatcher.On("Dispatch", mock.Anything, []string{"tok-a"},
			notify.Payload{Title: "Aviso", Body: "Junta mañana"}, "bearer-1").
			Return(notify.Result{DispatchID: "d-1", Attempted: 1, Delivered: 1})

		processor := pipeline.NewProcessor(resolver, store, credentials, dispatcher, logger)
		err := processor(ctx, messagepipeline.Message{}, job)

		require.NoError(t, err)
		dispatcher.AssertExpectations(t)
	})

	t.Run("Empty audience acks the message", func(t *testing.T) {
		resolver := new(mockResolver)
		store := new(mockTokenStore)
		credentials := new(mockCredentials)
		dispatcher := new(mockDispatcher)

		resolver.On("Resolve", mock.Anything, notify.GroupAudience("G1")).Return([]string{}, nil)

		processor := pipeline.NewProcessor(resolver, store, credentials, dispatcher, logger)
		err := processor(ctx, messagepipeline.Message{}, job)

		require.NoError(t, err)
		store.AssertNotCalled(t, "TokensForUsers", mock.Anything, mock.Anything)
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("No registered devices acks rather than poisons", func(t *testing.T) {
		resolver := new(mockResolver)
		store := new(mockTokenStore)
		credentials := new(mockCredentials)
		dispatcher := new(mockDispatcher)

		resolver.On("Resolve", mock.Anything, notify.GroupAudience("G1")).Return([]string{"U1"}, nil)
		store.On("TokensForUsers", mock.Anything, []string{"U1"}).Return(map[string][]string{}, nil)

		processor := pipeline.NewProcessor(resolver, store, credentials, dispatcher, logger)
		err := processor(ctx, messagepipeline.Message{}, job)

		require.NoError(t, err)
		credentials.AssertNotCalled(t, "Token", mock.Anything)
	})

	t.Run("Resolution failure is retryable", func(t *testing.T) {
		resolver := new(mockResolver)
		store := new(mockTokenStore)
		credentials := new(mockCredentials)
		dispatcher := new(mockDispatcher)

		resolver.On("Resolve", mock.Anything, notify.GroupAudience("G1")).Return(nil, context.DeadlineExceeded)

		processor := pipeline.NewProcessor(resolver, store, credentials, dispatcher, logger)
		err := processor(ctx, messagepipeline.Message{}, job)

		require.Error(t, err)
	})

	t.Run("Credential failure is retryable", func(t *testing.T) {
		resolver := new(mockResolver)
		store := new(mockTokenStore)
		credentials := new(mockCredentials)
		dispatcher := new(mockDispatcher)

		resolver.On("Resolve", mock.Anything, notify.GroupAudience("G1")).Return([]string{"U1"}, nil)
		store.On("TokensForUsers", mock.Anything, []string{"U1"}).
			Return(map[string][]string{"U1": {"tok-a"}}, nil)
		credentials.On("Token", mock.Anything).Return("", context.DeadlineExceeded)

		processor := pipeline.NewProcessor(resolver, store, credentials, dispatcher, logger)
		err := processor(ctx, messagepipeline.Message{}, job)

		require.Error(t, err)
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
