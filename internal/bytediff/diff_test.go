package bytediff

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconstruct(segments []Segment) (a, b string) {
	for _, seg := range segments {
		if !seg.Added {
			a += seg.Text
		}
		if !seg.Removed {
			b += seg.Text
		}
	}
	return a, b
}

func changed(segments []Segment) (added, removed []string) {
	for _, seg := range segments {
		if seg.Added {
			added = append(added, seg.Text)
		}
		if seg.Removed {
			removed = append(removed, seg.Text)
		}
	}
	return added, removed
}

func TestDiff_CharGranularity(t *testing.T) {
	result, err := Diff("00ff", "01ff", GranularityChar)
	require.NoError(t, err)

	added, removed := changed(result.Segments)
	assert.Equal(t, []string{"1"}, added)
	assert.Equal(t, []string{"0"}, removed)
	assert.Equal(t, 1, result.AddedChars)
	assert.Equal(t, 1, result.RemovedChars)
	assert.True(t, result.HasChanges)

	a, b := reconstruct(result.Segments)
	assert.Equal(t, "00ff", a)
	assert.Equal(t, "01ff", b)
}

func TestDiff_ByteGranularity(t *testing.T) {
	result, err := Diff("00ff", "01ff", GranularityByte)
	require.NoError(t, err)

	added, removed := changed(result.Segments)
	assert.Equal(t, []string{"01"}, added)
	assert.Equal(t, []string{"00"}, removed)
	assert.Equal(t, 2, result.AddedChars)
	assert.Equal(t, 2, result.RemovedChars)

	a, b := reconstruct(result.Segments)
	assert.Equal(t, "00ff", a)
	assert.Equal(t, "01ff", b)
}

func TestDiff_IdenticalInputs(t *testing.T) {
	for _, granularity := range []Granularity{GranularityChar, GranularityByte} {
		result, err := Diff("6080604052", "6080604052", granularity)
		require.NoError(t, err)
		assert.False(t, result.HasChanges)
		assert.Equal(t, 0, result.AddedChars)
		assert.Equal(t, 0, result.RemovedChars)
		require.Len(t, result.Segments, 1)
		assert.Equal(t, "6080604052", result.Segments[0].Text)
	}
}

func TestDiff_CasePreserved(t *testing.T) {
	result, err := Diff("00FF", "00ff", GranularityChar)
	require.NoError(t, err)
	a, b := reconstruct(result.Segments)
	assert.Equal(t, "00FF", a)
	assert.Equal(t, "00ff", b)
	assert.True(t, result.HasChanges)
}

func TestDiff_EmptyInputs(t *testing.T) {
	result, err := Diff("", "00ff", GranularityByte)
	require.NoError(t, err)
	assert.Equal(t, 4, result.AddedChars)
	assert.Equal(t, 0, result.RemovedChars)

	result, err = Diff("", "", GranularityChar)
	require.NoError(t, err)
	assert.False(t, result.HasChanges)
}

func TestDiff_OddLengthByteInput(t *testing.T) {
	// A trailing lone nibble still rounds the partition.
	result, err := Diff("00f", "00f", GranularityByte)
	require.NoError(t, err)
	a, b := reconstruct(result.Segments)
	assert.Equal(t, "00f", a)
	assert.Equal(t, "00f", b)
	assert.False(t, result.HasChanges)
}

func TestDiff_ByteAlignmentDiffersFromChar(t *testing.T) {
	// "abcd" -> "abdc": char mode can align single characters, byte mode
	// must replace whole tokens.
	charResult, err := Diff("abcd", "abdc", GranularityChar)
	require.NoError(t, err)
	byteResult, err := Diff("abcd", "abdc", GranularityByte)
	require.NoError(t, err)

	assert.NotEqual(t, charResult.AddedChars, byteResult.AddedChars)
	assert.Equal(t, 2, byteResult.AddedChars)
	assert.Equal(t, 2, byteResult.RemovedChars)
}

func TestDiff_UnknownGranularity(t *testing.T) {
	_, err := Diff("a", "b", Granularity("word"))
	assert.Error(t, err)
}

func TestDiff_LargeInputPartitionInvariant(t *testing.T) {
	a := strings.Repeat("6080604052", 200) + "aa" + strings.Repeat("00", 100)
	b := strings.Repeat("6080604052", 200) + "bb" + strings.Repeat("00", 100)

	result, err := Diff(a, b, GranularityByte)
	require.NoError(t, err)
	gotA, gotB := reconstruct(result.Segments)
	assert.Equal(t, a, gotA)
	assert.Equal(t, b, gotB)
	assert.Equal(t, 2, result.AddedChars)
	assert.Equal(t, 2, result.RemovedChars)
}

func TestLocalExecutor_RespondsWithMatchingID(t *testing.T) {
	exec := NewLocalExecutor()
	defer exec.Close()

	exec.Submit(Request{A: "00", B: "01", Granularity: GranularityByte, RequestID: "req-1"})

	select {
	case resp := <-exec.Responses():
		assert.Equal(t, "req-1", resp.RequestID)
		require.NoError(t, resp.Err)
		assert.True(t, resp.Result.HasChanges)
	case <-time.After(2 * time.Second):
		t.Fatal("no response from executor")
	}
}

func TestSession_DropsStaleResponses(t *testing.T) {
	exec := NewLocalExecutor()
	defer exec.Close()

	session := NewSession(exec)
	defer session.Close()

	session.Request("00ff", "01ff", GranularityChar)
	latest := session.Request("00ff", "00ff", GranularityChar)

	// The latest request's response must arrive; a response superseded
	// before delivery is dropped by the session. It reports no changes,
	// unlike the superseded one.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case resp := <-session.Results():
			require.NoError(t, resp.Err)
			if resp.RequestID == latest {
				assert.False(t, resp.Result.HasChanges)
				return
			}
		case <-deadline:
			t.Fatal("latest response never arrived")
		}
	}
}
