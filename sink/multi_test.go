package sink

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{}

func (failingSink) Publish(name string, value float64, count int) {}
func (failingSink) Flush(ctx context.Context) error { return errors.New("unavailable") }

func TestMulti(t *testing.T) {
	a, b := NewRegistry(nil), NewRegistry(nil)
	m := Multi{a, failingSink{}, b}
	m.Publish("x", 3, 1)

	assert.EqualError(t, m.Flush(context.Background()), "unavailable")
	for _, r := range []*Registry{a, b} {
		v, err := r.Value("x")
		require.NoError(t, err)
		assert.Equal(t, 3.0, v)
	}
}
