package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/gatewatch/internal/models"
)

func conn(id string, server models.ServerID) models.Connection {
	return models.Connection{ID: id, Server: server, OpenedAt: time.Now()}
}

func TestRegistryAddRemoveCount(t *testing.T) {
	r := New(models.ServerExternal)

	require.NoError(t, r.Add(conn("a", models.ServerExternal)))
	require.NoError(t, r.Add(conn("b", models.ServerExternal)))
	assert.Equal(t, 2, r.Count())

	assert.True(t, r.Remove("a"))
	assert.Equal(t, 1, r.Count())

	// second remove of the same id is a no-op
	assert.False(t, r.Remove("a"))
	assert.Equal(t, 1, r.Count())
}

func TestRegistryDuplicateID(t *testing.T) {
	r := New(models.ServerInternal)
	require.NoError(t, r.Add(conn("dup", models.ServerInternal)))

	err := r.Add(conn("dup", models.ServerInternal))
	require.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRejectsOtherServer(t *testing.T) {
	r := New(models.ServerInternal)
	err := r.Add(conn("x", models.ServerExternal))
	require.ErrorIs(t, err, ErrWrongServer)
	assert.Zero(t, r.Count())
}

func TestRegistryListOrder(t *testing.T) {
	r := New(models.ServerExternal)
	base := time.Now()
	for i, id := range []string{"c", "a", "b"} {
		c := conn(id, models.ServerExternal)
		c.OpenedAt = base.Add(time.Duration(2-i) * time.Second)
		require.NoError(t, r.Add(c))
	}

	got := r.List()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestRegistryConcurrentConnectDisconnect(t *testing.T) {
	r := New(models.ServerExternal)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			if err := r.Add(conn(id, models.ServerExternal)); err != nil {
				t.Errorf("add %s: %v", id, err)
				return
			}
			// odd connections disconnect again, some of them twice
			if i%2 == 1 {
				r.Remove(id)
				if i%3 == 0 {
					r.Remove(id)
				}
			}
		}(i)
	}

	// readers run concurrently with the writers
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c := r.Count()
					if c < 0 || c > n {
						t.Errorf("count out of range: %d", c)
					}
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	assert.Equal(t, n/2, r.Count())
	assert.Len(t, r.List(), n/2)
}

func TestSet(t *testing.T) {
	s := NewSet(models.Servers...)

	require.NoError(t, s.Add(models.ServerExternal, conn("e1", models.ServerExternal)))
	require.NoError(t, s.Add(models.ServerInternal, conn("i1", models.ServerInternal)))
	require.NoError(t, s.Add(models.ServerInternal, conn("i2", models.ServerInternal)))

	assert.Equal(t, 1, s.Count(models.ServerExternal))
	assert.Equal(t, 2, s.Count(models.ServerInternal))

	require.NoError(t, s.Remove(models.ServerInternal, "i1"))
	require.NoError(t, s.Remove(models.ServerInternal, "missing"))
	assert.Equal(t, 1, s.Count(models.ServerInternal))
	assert.Equal(t, 1, s.Count(models.ServerExternal), "registries are independent")

	_, err := s.Get("bogus")
	require.ErrorIs(t, err, ErrUnknownServer)
	require.ErrorIs(t, s.Remove("bogus", "x"), ErrUnknownServer)
	assert.Zero(t, s.Count("bogus"))

	list, err := s.List(models.ServerInternal)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "i2", list[0].ID)
}
