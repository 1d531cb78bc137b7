package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/telemetry"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_IsNewestVisibleInChronologicalOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("window holds the last N visible exchanges oldest first", prop.ForAll(
		func(total, windowSize int, hidden []bool) bool {
			s := newStore()
			rm := &fakeRM{s: s}
			repo := rm.Exchanges(nil)
			ctx := context.Background()

			var visible []string
			for i := 0; i < total; i++ {
				ex, err := repo.Create(ctx, newExchange("u1", fmt.Sprintf("m%d", i)))
				if err != nil {
					return false
				}
				if i < len(hidden) && hidden[i] {
					if _, err := repo.SoftDelete(ctx, "u1", []string{ex.ID}); err != nil {
						return false
					}
					continue
				}
				visible = append(visible, ex.ID)
			}

			a := NewContextAssembler(nil, rm, nil, AssemblerConfig{WindowSize: windowSize}, telemetry.Noop(), logging.Nop{})
			window, err := a.Window(ctx, "u1")
			if err != nil {
				return false
			}

			want := visible[max(0, len(visible)-windowSize):]
			if len(window) != len(want) {
				return false
			}
			for i, ex := range window {
				if ex.ID != want[i] || ex.Deleted {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 30),
		gen.IntRange(1, 12),
		gen.SliceOfN(30, gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestAssemble_ForeignSnippetsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "u2", "My granddaughter Lily", "nice")

	assembler := NewContextAssembler(h.db, h.rm, h.index, AssemblerConfig{}, telemetry.Noop(), logging.Nop{})
	got, err := assembler.Assemble(ctx, "u1", "Margaret", "granddaughter Lily")
	require.NoError(t, err)
	assert.Empty(t, got.Memories)
	assert.NotContains(t, got.Segments[0].Text, "Lily")
}

func TestAssemble_DefaultsApplied(t *testing.T) {
	a := NewContextAssembler(nil, &fakeRM{s: newStore()}, nil, AssemblerConfig{}, telemetry.Noop(), logging.Nop{})
	assert.Equal(t, DefaultMemoryTopK, a.topK)
	assert.Equal(t, DefaultWindowSize, a.windowSize)
	assert.Equal(t, DefaultMemoryTimeout, a.memoryTimeout)

	got, err := a.Assemble(context.Background(), "u1", "", "hello")
	require.NoError(t, err)
	require.Len(t, got.Segments, 2, "preamble and message only")
	assert.Empty(t, got.Memories)
}
