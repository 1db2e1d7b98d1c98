package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/matrix-org/stateres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, options{
		fixturePath:     "testdata/ban_vs_power_levels.yaml",
		cacheConfigPath: "testdata/cache.yaml",
	})
	require.NoError(t, err)

	var entries []string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "* ") {
			entries = append(entries, line)
		}
	}
	assert.True(t, strings.HasPrefix(out.String(), "Resolved state contains 5 events\n"))
	assert.Equal(t, []string{
		`* $create m.room.create ""`,
		`* $join-rules m.room.join_rules ""`,
		`* $alice-join m.room.member "@alice:example.org"`,
		`* $bob-ban m.room.member "@bob:example.org"`,
		`* $power-levels m.room.power_levels ""`,
	}, entries)
	assert.Contains(t, out.String(), `  {"membership":"ban"}`)
}

func TestRunUnsupportedRoomVersion(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, options{
		fixturePath: "testdata/ban_vs_power_levels.yaml",
		roomVersion: "1",
	})
	var unsupported stateres.UnsupportedRoomVersionError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, stateres.RoomVersionV1, unsupported.Version)
	assert.Empty(t, out.String())
}

func TestRunMissingFixture(t *testing.T) {
	err := run(context.Background(), &bytes.Buffer{}, options{fixturePath: "testdata/missing.yaml"})
	assert.Error(t, err)
}
