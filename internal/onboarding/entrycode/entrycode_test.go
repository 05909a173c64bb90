package entrycode

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enroll/pkg/platform/sentinel"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func neverExists(context.Context, string) (bool, error) { return false, nil }

func TestGenerate_Format(t *testing.T) {
	gen := New()
	for range 100 {
		code, err := gen.Generate(context.Background(), neverExists)
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
	}
}

func TestAppendUnbiased(t *testing.T) {
	// 0 and 36 map to 'A', 35 and 251 to '9'; 252..255 are discarded so no
	// character is likelier than another.
	out := appendUnbiased(nil, []byte{0, 35, 36, 251, 252, 253, 254, 255})
	assert.Equal(t, "A9A9", string(out))

	out = appendUnbiased(nil, []byte{252, 255})
	assert.Empty(t, out)
}

func TestGenerate_NoRepeatsAcrossCalls(t *testing.T) {
	gen := New()
	seen := make(map[string]struct{})
	exists := func(_ context.Context, code string) (bool, error) {
		_, taken := seen[code]
		return taken, nil
	}
	for range 500 {
		code, err := gen.Generate(context.Background(), exists)
		require.NoError(t, err)
		_, dup := seen[code]
		require.False(t, dup, "code %s returned twice", code)
		seen[code] = struct{}{}
	}
}

func TestGenerate_RetriesPastCollisions(t *testing.T) {
	gen := New()
	collisions := 0
	exists := func(context.Context, string) (bool, error) {
		if collisions < 3 {
			collisions++
			return true, nil
		}
		return false, nil
	}
	code, err := gen.Generate(context.Background(), exists)
	require.NoError(t, err)
	assert.Regexp(t, codePattern, code)
	assert.Equal(t, 3, collisions)
}

func TestGenerate_ExhaustsAgainstAlwaysTakenCheck(t *testing.T) {
	gen := New(WithMaxAttempts(5))
	calls := 0
	alwaysTaken := func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}
	_, err := gen.Generate(context.Background(), alwaysTaken)
	require.ErrorIs(t, err, ErrSpaceExhausted)
	require.ErrorIs(t, err, sentinel.ErrExhausted)
	assert.Equal(t, 5, calls)
}

func TestGenerate_PropagatesCheckError(t *testing.T) {
	gen := New()
	boom := errors.New("store down")
	_, err := gen.Generate(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestGenerate_HonoursContextCancellation(t *testing.T) {
	gen := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gen.Generate(ctx, neverExists)
	require.ErrorIs(t, err, context.Canceled)
}
