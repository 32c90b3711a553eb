package dicore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	t.Run("nil when unset", func(t *testing.T) {
		SetDefault(nil)
		assert.Nil(t, Default())
	})

	t.Run("set and get", func(t *testing.T) {
		c, _ := newTestContainer(t)
		require.NoError(t, c.Singleton(NewDatabase))

		SetDefault(c)
		assert.Same(t, c, Default())

		db, err := Resolve[*Database](Default())
		require.NoError(t, err)
		assert.NotNil(t, db)
	})

	t.Run("concurrent access", func(t *testing.T) {
		c, _ := newTestContainer(t)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				SetDefault(c)
			}()
			go func() {
				defer wg.Done()
				_ = Default()
			}()
		}
		wg.Wait()

		assert.Same(t, c, Default())
	})
}
