package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testManager() *Manager {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewManager(5*time.Second, logger)
}

func TestShutdown_ExecutesHooksInOrder(t *testing.T) {
	m := testManager()

	var executed []string
	m.Register("second", func(ctx context.Context) error {
		executed = append(executed, "second")
		return nil
	}, 2)
	m.Register("first", func(ctx context.Context) error {
		executed = append(executed, "first")
		return nil
	}, 1)

	m.Shutdown()

	assert.Equal(t, []string{"first", "second"}, executed)
	assert.True(t, m.IsShuttingDown())
}

func TestShutdown_ContinuesAfterHookError(t *testing.T) {
	m := testManager()

	var executed []string
	m.Register("failing", func(ctx context.Context) error {
		executed = append(executed, "failing")
		return errors.New("清理失败")
	}, 1)
	m.Register("healthy", func(ctx context.Context) error {
		executed = append(executed, "healthy")
		return nil
	}, 2)

	m.Shutdown()

	// 单个清理步骤失败不阻止后续步骤
	assert.Equal(t, []string{"failing", "healthy"}, executed)
}

func TestShutdown_CancelsContext(t *testing.T) {
	m := testManager()

	select {
	case <-m.Context().Done():
		t.Fatal("上下文不应提前取消")
	default:
	}

	m.Shutdown()

	select {
	case <-m.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("停机后上下文应被取消")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	m := testManager()

	count := 0
	m.Register("once", func(ctx context.Context) error {
		count++
		return nil
	}, 1)

	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, 1, count)
}
