package feedback

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntent_Weight(t *testing.T) {
	tests := []struct {
		intent   Intent
		expected float64
		explicit bool
	}{
		{intent: IntentLike, expected: 0.5, explicit: true},
		{intent: IntentDislike, expected: -0.5, explicit: true},
		{intent: IntentSkip, expected: -0.25},
		{intent: IntentExtend, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.intent.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.intent.Weight())
			assert.Equal(t, tt.explicit, tt.intent.IsExplicit())
		})
	}

	assert.True(t, IntentSkip.IsSkip())
	assert.False(t, IntentExtend.IsSkip())
}

func TestLedger_RecordOncePerIndex(t *testing.T) {
	l := NewLedger()

	assert.True(t, l.Record(0, IntentLike))
	assert.False(t, l.Record(0, IntentLike))
	assert.False(t, l.Record(0, IntentDislike))
	assert.True(t, l.Record(1, IntentDislike))

	intent, ok := l.Get(0)
	assert.True(t, ok)
	assert.Equal(t, IntentLike, intent)

	intent, ok = l.Get(1)
	assert.True(t, ok)
	assert.Equal(t, IntentDislike, intent)

	_, ok = l.Get(2)
	assert.False(t, ok)
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	l := NewLedger()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Record(3, IntentLike) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
}
