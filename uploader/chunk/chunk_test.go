package chunk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = int64(1024 * 1024)

func TestNewPlan_Bounds(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int64
		wantErr   bool
	}{
		{name: "default when zero", chunkSize: 0, wantErr: false},
		{name: "lower bound inclusive", chunkSize: 5 * mib, wantErr: false},
		{name: "upper bound inclusive", chunkSize: 128 * mib, wantErr: false},
		{name: "below lower bound", chunkSize: 5*mib - 1, wantErr: true},
		{name: "above upper bound", chunkSize: 128*mib + 1, wantErr: true},
		{name: "way too small", chunkSize: 1024, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlan(100*mib, tt.chunkSize)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.chunkSize == 0 {
				assert.Equal(t, DefaultSizeBytes, plan.ChunkSize)
			} else {
				assert.Equal(t, tt.chunkSize, plan.ChunkSize)
			}
		})
	}
}

func TestNewPlan_NegativeFileSize(t *testing.T) {
	_, err := NewPlan(-1, 5*mib)
	assert.Error(t, err)
}

func TestPlan_Count(t *testing.T) {
	tests := []struct {
		fileSize  int64
		chunkSize int64
		want      int
	}{
		{fileSize: 0, chunkSize: 5 * mib, want: 1},
		{fileSize: 1, chunkSize: 5 * mib, want: 1},
		{fileSize: 5 * mib, chunkSize: 5 * mib, want: 1},
		{fileSize: 5*mib + 1, chunkSize: 5 * mib, want: 2},
		{fileSize: 12 * mib, chunkSize: 5 * mib, want: 3},
		{fileSize: 1024 * mib, chunkSize: 128 * mib, want: 8},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d", tt.fileSize, tt.chunkSize), func(t *testing.T) {
			plan, err := NewPlan(tt.fileSize, tt.chunkSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Count())
		})
	}
}

func TestPlan_RangesPartitionFile(t *testing.T) {
	fileSizes := []int64{0, 1, 5 * mib, 5*mib + 1, 12 * mib, 50 * mib, 128*mib + 17}
	chunkSizes := []int64{5 * mib, 7 * mib, 50 * mib, 128 * mib}

	for _, fileSize := range fileSizes {
		for _, chunkSize := range chunkSizes {
			plan, err := NewPlan(fileSize, chunkSize)
			require.NoError(t, err)

			var covered int64
			for i := 0; i < plan.Count(); i++ {
				start, end := plan.Range(i)
				require.Equal(t, covered, start, "chunk %d should start where the previous one ended", i)
				require.LessOrEqual(t, start, end)
				require.LessOrEqual(t, end, fileSize)
				require.Equal(t, end-start, plan.SizeOf(i))
				covered = end
			}
			require.Equal(t, fileSize, covered, "chunks should cover the whole file")
		}
	}
}

func TestPlan_EmptyFileSingleEmptyChunk(t *testing.T) {
	plan, err := NewPlan(0, 5*mib)
	require.NoError(t, err)

	require.Equal(t, 1, plan.Count())
	start, end := plan.Range(0)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(0), end)
}

func TestParseSize(t *testing.T) {
	bytes, err := ParseSize("50MB")
	require.NoError(t, err)
	assert.Equal(t, 50*mib, bytes)

	_, err = ParseSize("not-a-size")
	assert.Error(t, err)
}
