package main

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/freeze/engine"
)

func renderCmd(t *testing.T, page int) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().Bool("json", false, "")
	cmd.Flags().Int("page", page, "")
	var out bytes.Buffer
	cmd.SetOut(&out)
	return cmd, &out
}

func fakeSnapshots(n int) []engine.Snapshot {
	snaps := make([]engine.Snapshot, n)
	for i := range snaps {
		snaps[i] = engine.Snapshot{
			ID:        int64(i + 1),
			Root:      fmt.Sprintf("/work/project-%d", i+1),
			Kind:      engine.KindDir,
			Checksum:  fmt.Sprintf("%064d", i+1),
			FileCount: 1,
			CreatedAt: time.Now(),
		}
	}
	return snaps
}

func TestRenderSnapshots_Empty(t *testing.T) {
	cmd, out := renderCmd(t, 1)
	require.NoError(t, renderSnapshots(cmd, nil))
	assert.Contains(t, out.String(), "no snapshots")
}

func TestRenderSnapshots_SinglePage(t *testing.T) {
	cmd, out := renderCmd(t, 1)
	require.NoError(t, renderSnapshots(cmd, fakeSnapshots(3)))

	s := out.String()
	assert.Contains(t, s, "/work/project-1")
	assert.Contains(t, s, "/work/project-3")
	assert.NotContains(t, s, "page ")
}

func TestRenderSnapshots_Pagination(t *testing.T) {
	cmd, out := renderCmd(t, 2)
	require.NoError(t, renderSnapshots(cmd, fakeSnapshots(25)))

	s := out.String()
	assert.NotContains(t, s, "/work/project-9\n") // page 1
	assert.Contains(t, s, "/work/project-11")
	assert.Contains(t, s, "/work/project-20")
	assert.NotContains(t, s, "/work/project-21") // page 3
	assert.Contains(t, s, "page 2/3 (25 total)")
}

func TestRenderSnapshots_PageBeyondEnd(t *testing.T) {
	cmd, out := renderCmd(t, 99)
	require.NoError(t, renderSnapshots(cmd, fakeSnapshots(5)))
	assert.NotContains(t, out.String(), "/work/project")
}

func TestShortSum(t *testing.T) {
	assert.Equal(t, "abc", shortSum("abc"))
	assert.Len(t, shortSum(fmt.Sprintf("%064d", 1)), 12)
}
