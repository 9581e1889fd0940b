package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 哨兵错误被多个请求共享，构造器必须返回副本而不能改写哨兵本身
func TestWithContext_DoesNotMutateSentinel(t *testing.T) {
	enriched := ErrInvalidAddress.WithContext("input", "0xzz")

	require.NotSame(t, ErrInvalidAddress, enriched)
	assert.Nil(t, ErrInvalidAddress.Context)
	assert.Equal(t, "0xzz", enriched.Context["input"])
	assert.Equal(t, ErrInvalidAddress.Code, enriched.Code)
}

func TestWithAddress_DoesNotMutateSentinel(t *testing.T) {
	enriched := ErrCodeUnavailable.WithAddress("0x1234")

	assert.Nil(t, ErrCodeUnavailable.Address)
	require.NotNil(t, enriched.Address)
	assert.Equal(t, "0x1234", *enriched.Address)
}

func TestWithBlockNumber_DoesNotMutateSentinel(t *testing.T) {
	enriched := ErrBlockNotMined.WithBlockNumber(12345)

	assert.Nil(t, ErrBlockNotMined.BlockNumber)
	require.NotNil(t, enriched.BlockNumber)
	assert.Equal(t, uint64(12345), *enriched.BlockNumber)
}

// 并发请求同时丰富同一个哨兵错误时，各自的副本互不干扰
func TestWithContext_ConcurrentOnSharedSentinel(t *testing.T) {
	const workers = 16

	results := make([]*InspectorError, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = ErrInvalidAddress.WithContext("input", fmt.Sprintf("0x%02d", n))
		}(i)
	}
	wg.Wait()

	assert.Nil(t, ErrInvalidAddress.Context)
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, fmt.Sprintf("0x%02d", i), res.Context["input"])
		assert.Len(t, res.Context, 1)
	}
}

// 链式构造在每一步都复制，前一步的副本不被后续调用污染
func TestBuilders_ChainedCallsAreIndependent(t *testing.T) {
	base := NewInspectorError(ErrorTypeInput, SeverityMedium, "TEST_CODE", "测试错误").
		WithContext("step", 1)
	extended := base.WithContext("step", 2).WithAddress("0xabc")

	assert.Equal(t, 1, base.Context["step"])
	assert.Nil(t, base.Address)
	assert.Equal(t, 2, extended.Context["step"])
	require.NotNil(t, extended.Address)
}
