package doctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/config"
)

type fakeLister struct {
	convs []chat.Conversation
	err   error
}

func (f fakeLister) ListConversations(context.Context) ([]chat.Conversation, error) {
	return f.convs, f.err
}

func TestServerCheck_Pass(t *testing.T) {
	check := NewServerCheck(
		fakeLister{convs: []chat.Conversation{{ID: "c1"}, {ID: "c2"}}},
		func(context.Context) error { return nil },
		time.Second,
	)

	result := check.Run(context.Background())
	require.Len(t, result.Items, 2)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, "2 conversation(s)", result.Items[0].Detail)
	assert.Equal(t, StatusPass, result.Items[1].Status)
}

func TestServerCheck_Failures(t *testing.T) {
	check := NewServerCheck(
		fakeLister{err: errors.New("401 unauthorized")},
		func(context.Context) error { return errors.New("handshake rejected") },
		time.Second,
	)

	results := RunAll(context.Background(), []Check{check})
	require.Len(t, results, 1)

	passed, warned, failed := Summary(results)
	assert.Equal(t, 0, passed)
	assert.Equal(t, 0, warned)
	assert.Equal(t, 2, failed)
	assert.Equal(t, "fail", results[0].Items[1].StatusStr)
	assert.Equal(t, "handshake rejected", results[0].Items[1].Detail)
}

func TestConfigCheck(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		result := NewConfigCheck(nil, "").Run(context.Background())
		require.Len(t, result.Items, 1)
		assert.Equal(t, StatusFail, result.Items[0].Status)
	})

	t.Run("errors and warnings", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Server.Transport = "carrier-pigeon"

		result := NewConfigCheck(&cfg, "").Run(context.Background())

		var fails, warns int
		for _, item := range result.Items {
			switch item.Status {
			case StatusFail:
				fails++
			case StatusWarn:
				warns++
			}
		}
		assert.Positive(t, fails)
		assert.Positive(t, warns, "missing token is a warning")
	})
}

func TestHealthy(t *testing.T) {
	assert.True(t, Healthy([]Result{{Items: []CheckItem{{Status: StatusPass}, {Status: StatusWarn}}}}))
	assert.False(t, Healthy([]Result{{Items: []CheckItem{{Status: StatusPass}}}, {Items: []CheckItem{{Status: StatusFail}}}}))
}
