package compat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0ldeuboi/firefly-sub000/internal/compat"
	"github.com/0ldeuboi/firefly-sub000/internal/release"
)

type fakeSource struct {
	tags      []string
	manifests map[string]string
}

func (*fakeSource) Resolve(_ context.Context, _ string) (*release.Release, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) Tags(_ context.Context, limit int) ([]string, error) {
	if limit < len(f.tags) {
		return f.tags[:limit], nil
	}

	return f.tags, nil
}

func (f *fakeSource) RawFile(_ context.Context, tag string, _ string) ([]byte, error) {
	body, ok := f.manifests[tag]
	if !ok {
		return nil, errors.New("no manifest for " + tag)
	}

	return []byte(body), nil
}

func (*fakeSource) DownloadAsset(_ context.Context, _ int64, _ string) error {
	return errors.New("not implemented")
}

func TestFindCompatibleRuntime(t *testing.T) {
	t.Parallel()

	available := []string{"7.4", "8.0", "8.1", "8.2"}

	cases := []struct {
		name     string
		min      string
		expected string
		found    bool
	}{
		{
			name:     "Exact minor match wins",
			min:      "8.1",
			expected: "8.1",
			found:    true,
		},
		{
			name:     "Lowest satisfying version, not the highest",
			min:      "8.0.5",
			expected: "8.1",
			found:    true,
		},
		{
			name:  "Nothing satisfies",
			min:   "8.3",
			found: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, found := compat.FindCompatibleRuntime(tc.min, available)
			require.Equal(t, tc.found, found)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestFindCompatibleRelease(t *testing.T) {
	t.Parallel()

	t.Run("Newest satisfied release wins", func(t *testing.T) {
		t.Parallel()

		src := &fakeSource{
			tags: []string{"v6.2.0", "v6.1.0", "v6.0.0"},
			manifests: map[string]string{
				"v6.2.0": `{"require":{"php":">=8.3"}}`,
				"v6.1.0": `{"require":{"php":">=8.2"}}`,
				"v6.0.0": `{"require":{"php":">=8.1"}}`,
			},
		}

		choice, err := compat.FindCompatibleRelease(context.Background(), src, "8.2.10", 3)
		require.NoError(t, err)
		require.Equal(t, "v6.1.0", choice.Tag)
		require.False(t, choice.Caution)
	})

	t.Run("Unfetchable manifest is skipped", func(t *testing.T) {
		t.Parallel()

		src := &fakeSource{
			tags: []string{"v6.2.0", "v6.1.0"},
			manifests: map[string]string{
				// v6.2.0 has no manifest at all.
				"v6.1.0": `{"require":{"php":">=8.1"}}`,
			},
		}

		choice, err := compat.FindCompatibleRelease(context.Background(), src, "8.1.0", 2)
		require.NoError(t, err)
		require.Equal(t, "v6.1.0", choice.Tag)
		require.False(t, choice.Caution)
	})

	t.Run("Unknown latest floor proceeds with caution", func(t *testing.T) {
		t.Parallel()

		src := &fakeSource{
			tags:      []string{"v6.2.0"},
			manifests: map[string]string{},
		}

		choice, err := compat.FindCompatibleRelease(context.Background(), src, "8.1.0", 1)
		require.NoError(t, err)
		require.Equal(t, "v6.2.0", choice.Tag)
		require.True(t, choice.Caution)
	})

	t.Run("Nothing compatible", func(t *testing.T) {
		t.Parallel()

		src := &fakeSource{
			tags: []string{"v6.2.0", "v6.1.0"},
			manifests: map[string]string{
				"v6.2.0": `{"require":{"php":">=8.4"}}`,
				"v6.1.0": `{"require":{"php":">=8.3"}}`,
			},
		}

		_, err := compat.FindCompatibleRelease(context.Background(), src, "8.1.0", 2)
		require.ErrorIs(t, err, compat.ErrNoCompatibleRelease)
	})
}

func TestMinimumRuntime(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		manifests: map[string]string{
			"caret": `{"require":{"php":"^8.2.5|^8.3"}}`,
			"plain": `{"require":{"php":">=8.3"}}`,
			"none":  `{"require":{"ext-bcmath":"*"}}`,
		},
	}

	floor, err := compat.MinimumRuntime(context.Background(), src, "caret")
	require.NoError(t, err)
	require.Equal(t, "8.2.5", floor)

	floor, err = compat.MinimumRuntime(context.Background(), src, "plain")
	require.NoError(t, err)
	require.Equal(t, "8.3.0", floor)

	_, err = compat.MinimumRuntime(context.Background(), src, "none")
	require.Error(t, err)
}
