package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/ir"
)

func TestWriteEmission_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	closure := orderClosure("fact")

	id := writeTestEmission(t, s, closure)

	got, err := s.ReadEmission(t.Context(), id)
	require.NoError(t, err)

	assert.Equal(t, "orders", got.Nexus)
	assert.Equal(t, int64(1), got.Seq)
	assert.Equal(t, ir.MustClosureDigest(closure), got.Digest)
	assert.Equal(t, ir.EngineVersion, got.EngineVersion)
	assert.Equal(t, ir.FormatVersion, got.FormatVersion)
	assert.True(t, got.RecordedAt.Equal(testTime))

	if diff := cmp.Diff(closure, got.Closure); diff != "" {
		t.Errorf("closure mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(orderSnapshot(), got.Snapshot); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteEmission_FloatsKeepVariant(t *testing.T) {
	s := createTestStore(t)
	f := ir.NewFact("Measured", ir.NewObject(
		ir.P("whole", ir.Float(2)),
		ir.P("count", ir.Int(2)),
	), ir.WithID("m-1"), ir.WithCreatedAt(testTime))

	id := writeTestEmission(t, s, []ir.Fact{f})
	got, err := s.ReadEmission(t.Context(), id)
	require.NoError(t, err)
	require.Len(t, got.Closure, 1)

	assert.Equal(t, ir.Float(2), got.Closure[0].Payload["whole"])
	assert.Equal(t, ir.Int(2), got.Closure[0].Payload["count"])
}

func TestWriteEmission_SeqIncrements(t *testing.T) {
	s := createTestStore(t)

	writeTestEmission(t, s, orderClosure("a"))
	writeTestEmission(t, s, orderClosure("b"))
	writeTestEmission(t, s, nil)

	all, err := s.ReadEmissions(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, 4, all[0].FactCount)
	assert.Equal(t, 0, all[2].FactCount)
}

func TestWriteEmission_EmptyClosure(t *testing.T) {
	s := createTestStore(t)

	id := writeTestEmission(t, s, nil)
	got, err := s.ReadEmission(t.Context(), id)
	require.NoError(t, err)
	assert.Empty(t, got.Closure)
	assert.Equal(t, ir.MustClosureDigest(nil), got.Digest)
}

func TestWriteEmission_RejectsEmptyNexus(t *testing.T) {
	s := createTestStore(t)
	_, err := s.WriteEmission(t.Context(), Emission{Closure: orderClosure("x")})
	assert.Error(t, err)
}

func TestWriteEmission_DuplicateIDRollsBack(t *testing.T) {
	s := createTestStore(t)
	closure := orderClosure("dup")
	closure[3].ID = closure[2].ID

	_, err := s.WriteEmission(t.Context(), Emission{Nexus: "orders", Closure: closure})
	require.Error(t, err)

	all, err := s.ReadEmissions(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all, "failed write must not leave an emission row")
}

func TestReadEmission_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadEmission(t.Context(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadCorrelation(t *testing.T) {
	s := createTestStore(t)
	closure := orderClosure("fact")
	writeTestEmission(t, s, closure)

	got, err := s.ReadCorrelation(t.Context(), "fact-1")
	require.NoError(t, err)

	want := []ir.Fact{closure[0], closure[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("branch mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCorrelation_AcrossEmissions(t *testing.T) {
	s := createTestStore(t)
	// Sequence ids restart per run, so the same branch id recurs.
	writeTestEmission(t, s, orderClosure("fact"))
	writeTestEmission(t, s, orderClosure("fact"))

	got, err := s.ReadCorrelation(t.Context(), "fact-2")
	require.NoError(t, err)
	assert.Len(t, got, 4)
	for _, f := range got {
		assert.Equal(t, "fact-2", f.Correlation())
	}
}

func TestReadCorrelation_NotFound(t *testing.T) {
	s := createTestStore(t)
	writeTestEmission(t, s, orderClosure("fact"))

	_, err := s.ReadCorrelation(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadFact_MostRecent(t *testing.T) {
	s := createTestStore(t)
	first := orderClosure("fact")
	second := orderClosure("fact")
	second[0] = second[0].WithPayload("total", ir.Float(99))

	writeTestEmission(t, s, first)
	writeTestEmission(t, s, second)

	got, err := s.ReadFact(t.Context(), "fact-1")
	require.NoError(t, err)
	assert.Equal(t, ir.Float(99), got.Payload["total"])
}

func TestReadFact_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadFact(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
