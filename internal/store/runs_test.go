package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ormsql/internal/ir"
)

func TestRecordRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := Run{
		Fingerprint: "fp-1",
		Kind:        "select",
		SQL:         "select c1_0.name from customers c1_0 where c1_0.id = ?",
		Bindings:    ir.IRObject{"id": ir.IRInt(1)},
		RowCount:    1,
	}
	seq, inserted, err := s.RecordRun(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(1), seq)

	// same shape, same bindings
	again, inserted, err := s.RecordRun(ctx, first)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, seq, again)

	// same shape, other bindings
	second := first
	second.Bindings = ir.IRObject{"id": ir.IRInt(2)}
	second.RowCount = 0
	seq2, inserted, err := s.RecordRun(ctx, second)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(2), seq2)

	_, _, err = s.RecordRun(ctx, Run{Fingerprint: "fp-2", Kind: "delete", SQL: "delete from orders as o1_0", RowsAffected: 3})
	require.NoError(t, err)

	runs, err := s.ReadRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{runs[0].Seq, runs[1].Seq, runs[2].Seq})
	assert.Equal(t, ir.IRObject{"id": ir.IRInt(1)}, runs[0].Bindings)
	assert.Equal(t, 1, runs[0].RowCount)
	assert.Equal(t, ir.IRObject{}, runs[2].Bindings)
	assert.Equal(t, int64(3), runs[2].RowsAffected)

	hash, err := ir.BindingHash(ir.IRObject{"id": ir.IRInt(2)})
	require.NoError(t, err)
	assert.Equal(t, hash, runs[1].BindingHash)

	forFirst, err := s.ReadRunsFor(ctx, "fp-1")
	require.NoError(t, err)
	assert.Len(t, forFirst, 2)
}

// Ignored duplicates leave no gaps in the run sequence.
func TestRecordRun_DuplicatesKeepSeqDense(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := Run{Fingerprint: "fp-1", Kind: "select", SQL: "select 1"}
	for range 3 {
		seq, _, err := s.RecordRun(ctx, run)
		require.NoError(t, err)
		assert.Equal(t, int64(1), seq)
	}

	for i, fp := range []string{"fp-2", "fp-3"} {
		seq, inserted, err := s.RecordRun(ctx, Run{Fingerprint: fp, Kind: "select", SQL: "select 1"})
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, int64(i+2), seq)
	}
}

func TestBindingsRoundTrip(t *testing.T) {
	big := ir.IRInt(1 << 60)
	data, err := marshalBindings(ir.IRObject{"n": big, "s": ir.IRString("x"), "b": ir.IRBool(true), "z": ir.IRNull{}})
	require.NoError(t, err)
	assert.Equal(t, `{"b":true,"n":1152921504606846976,"s":"x","z":null}`, data)

	got, err := unmarshalBindings(data)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"n": big, "s": ir.IRString("x"), "b": ir.IRBool(true), "z": ir.IRNull{}}, got)
}
