package observability_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/haku/internal/observability"
)

func TestCorrelator_NextRequestID(t *testing.T) {
	t.Run("should allocate unique ids under concurrency", func(t *testing.T) {
		correlator := observability.NewCorrelator()

		const workers = 50
		const perWorker = 20

		var mu sync.Mutex
		seen := make(map[string]struct{})

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					id := correlator.NextRequestID()
					mu.Lock()
					seen[id] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, seen, workers*perWorker)
	})

	t.Run("should allocate ids in increasing order", func(t *testing.T) {
		correlator := observability.NewCorrelator()

		first := correlator.NextRequestID()
		second := correlator.NextRequestID()

		require.Less(t, first, second)
	})

	t.Run("should use distinct prefixes per run", func(t *testing.T) {
		a := observability.NewCorrelator()
		b := observability.NewCorrelator()

		require.NotEqual(t, a.NextRequestID(), b.NextRequestID())
	})
}

func TestStopwatch(t *testing.T) {
	t.Run("should measure elapsed wall-clock time", func(t *testing.T) {
		correlator := observability.NewCorrelator()

		watch := correlator.StartStopwatch()
		time.Sleep(5 * time.Millisecond)

		require.GreaterOrEqual(t, watch.Elapsed(), 5*time.Millisecond)
	})
}
