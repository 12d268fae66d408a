package openai_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/provider/openai"
)

func TestNewProvider_Success(t *testing.T) {
	config := openai.Config{
		APIKey:     "test-api-key",
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4-turbo",
		Timeout:    60,
		MaxRetries: 3,
	}

	provider, err := openai.NewProvider(config)

	require.NoError(t, err)
	require.NotNil(t, provider)
	require.Equal(t, "openai", provider.ID())
	require.Equal(t, "OpenAI", provider.Name())
}

func TestNewProvider_MissingAPIKey(t *testing.T) {
	config := openai.Config{
		APIKey:     "",
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    60,
		MaxRetries: 3,
	}

	provider, err := openai.NewProvider(config)

	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "OpenAI API key is required")
}

func TestProvider_Capabilities(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	require.Equal(t, []domain.CapabilityKind{
		domain.KindCodeCompletion,
		domain.KindChat,
		domain.KindCodeEdit,
	}, provider.Capabilities())
}

func TestProvider_Lifecycle(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	require.NoError(t, provider.Initialize(context.Background()))
	require.NoError(t, provider.Dispose())
}

func TestProvider_InputValidation(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	t.Run("should reject nil completion query", func(t *testing.T) {
		_, err := provider.ProvideCompletion(context.Background(), nil, nil)
		require.Error(t, err)
	})

	t.Run("should reject empty chat message", func(t *testing.T) {
		_, err := provider.ProvideChatResponse(context.Background(), "", nil)
		require.Error(t, err)
	})

	t.Run("should reject nil edit request", func(t *testing.T) {
		_, err := provider.ProvideCodeEdit(context.Background(), nil, nil)
		require.Error(t, err)
	})
}
