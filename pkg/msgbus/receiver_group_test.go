package msgbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deliverAll(t *testing.T, receivers []Receiver) {
	t.Helper()
	for _, r := range receivers {
		require.NoError(t, r.(*stubReceiver).deliver(newOrder("1")))
	}
}

func TestReceiverGroup_AddAndBuild(t *testing.T) {
	c := newTestContainer(t)
	g := NewReceiverGroupBuilder(c, baseReceiverType, BusOptions{})

	require.NoError(t, g.AddMessageReceiver("orders", []any{"orders-topic"}, func(ReceiverBuilder) {}))
	require.NoError(t, g.AddMessageReceiverOfType("refunds", narrowReceiverType, []any{}, func(ReceiverBuilder) {}))

	assert.Equal(t, []string{"orders", "refunds"}, g.ReceiverIDs())
	assert.Equal(t, baseReceiverType, g.BaseType())

	receivers, err := g.BuildReceivers()
	require.NoError(t, err)
	require.Len(t, receivers, 2)

	first := receivers[0].(*stubReceiver)
	assert.Equal(t, "orders", first.ReceiverID())
	assert.Equal(t, baseReceiverType, first.descriptor.Type)
	assert.Equal(t, []any{"orders-topic"}, first.descriptor.Parameters())

	second := receivers[1].(*stubReceiver)
	assert.Equal(t, narrowReceiverType, second.descriptor.Type)
}

func TestReceiverGroup_DuplicateIDRejected(t *testing.T) {
	c := newTestContainer(t)
	g := NewReceiverGroupBuilder(c, baseReceiverType, BusOptions{})
	tr := &callTrace{}

	require.NoError(t, g.AddMessageReceiver("orders", []any{}, func(b ReceiverBuilder) {
		b.Handle(func(TransmissionContext) error { tr.add("first"); return nil })
	}))

	secondConfigured := false
	err := g.AddMessageReceiverOfType("orders", narrowReceiverType, []any{}, func(b ReceiverBuilder) {
		secondConfigured = true
		b.Handle(func(TransmissionContext) error { tr.add("second"); return nil })
	})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "orders")
	assert.Contains(t, err.Error(), narrowReceiverType)
	assert.False(t, secondConfigured, "rejected receiver is never configured")

	receivers, err := g.BuildReceivers()
	require.NoError(t, err)
	require.Len(t, receivers, 1)

	deliverAll(t, receivers)
	assert.Equal(t, []string{"first"}, tr.Events())
	assert.Equal(t, baseReceiverType, receivers[0].(*stubReceiver).descriptor.Type)
}

func TestReceiverGroup_Validation(t *testing.T) {
	c := newTestContainer(t)
	g := NewReceiverGroupBuilder(c, baseReceiverType, BusOptions{})
	noop := func(ReceiverBuilder) {}

	testCases := []struct {
		name  string
		err   error
		field string
	}{
		{"blank id", g.AddMessageReceiver("  ", []any{}, noop), "receiverId"},
		{"nil parameters", g.AddMessageReceiver("a", nil, noop), "parameters"},
		{"nil configure", g.AddMessageReceiver("a", []any{}, nil), "configure"},
		{"blank type", g.AddMessageReceiverOfType("a", "", []any{}, noop), "receiverType"},
		{"type outside group", g.AddMessageReceiverOfType("a", otherReceiverType, []any{}, noop), "receiverType"},
		{"unregistered type", g.AddMessageReceiverOfType("a", "missing", []any{}, noop), "receiverType"},
		{"nil configurator", g.AddConfigurator(nil), "configurator"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var cfgErr *ConfigurationError
			require.ErrorAs(t, tc.err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}

	assert.Empty(t, g.ReceiverIDs())
}

func TestReceiverGroup_ConfigureAppliedImmediately(t *testing.T) {
	g := NewReceiverGroupBuilder(newTestContainer(t), baseReceiverType, BusOptions{})

	var got ReceiverDescriptor
	require.NoError(t, g.AddMessageReceiver("orders", []any{"p"}, func(b ReceiverBuilder) {
		got = b.Descriptor()
	}))
	assert.Equal(t, "orders", got.ID)
	assert.Equal(t, baseReceiverType, got.Type)
}

// TestReceiverGroup_MiddlewareOrdering verifies receiver middleware runs
// outermost, then group, then global, then the terminal handler.
func TestReceiverGroup_MiddlewareOrdering(t *testing.T) {
	tr := &callTrace{}
	bus := BusOptions{
		GlobalReceiverConfigurators: []ReceiverConfigurator{
			func(b ReceiverBuilder) { b.Use(tr.middleware("X")) },
		},
	}
	g := NewReceiverGroupBuilder(newTestContainer(t), baseReceiverType, bus)
	require.NoError(t, g.AddConfigurator(func(b ReceiverBuilder) { b.Use(tr.middleware("G")) }))
	require.NoError(t, g.AddMessageReceiver("orders", []any{}, func(b ReceiverBuilder) {
		b.Use(tr.middleware("M1")).Handle(tr.terminal())
	}))

	receivers, err := g.BuildReceivers()
	require.NoError(t, err)
	deliverAll(t, receivers)

	assert.Equal(t, []string{"M1-in", "G-in", "X-in", "terminal", "X-out", "G-out", "M1-out"}, tr.Events())
}

func TestReceiverGroup_ConfiguratorsApplyToEveryReceiver(t *testing.T) {
	tr := &callTrace{}
	g := NewReceiverGroupBuilder(newTestContainer(t), baseReceiverType, BusOptions{})
	require.NoError(t, g.AddConfigurator(func(b ReceiverBuilder) { b.Use(tr.middleware(b.Descriptor().ID)) }))

	// Configurator added before receivers still applies to all of them
	require.NoError(t, g.AddMessageReceiver("a", []any{}, func(ReceiverBuilder) {}))
	require.NoError(t, g.AddMessageReceiver("b", []any{}, func(ReceiverBuilder) {}))

	receivers, err := g.BuildReceivers()
	require.NoError(t, err)
	deliverAll(t, receivers)

	assert.Equal(t, []string{"a-in", "a-out", "b-in", "b-out"}, tr.Events())
}

func TestReceiverGroup_RepeatedBuildDoesNotDoubleApply(t *testing.T) {
	tr := &callTrace{}
	applied := 0
	bus := BusOptions{
		GlobalReceiverConfigurators: []ReceiverConfigurator{
			func(b ReceiverBuilder) { applied++; b.Use(tr.middleware("X")) },
		},
	}
	g := NewReceiverGroupBuilder(newTestContainer(t), baseReceiverType, bus)
	require.NoError(t, g.AddConfigurator(func(b ReceiverBuilder) { b.Use(tr.middleware("G")) }))
	require.NoError(t, g.AddMessageReceiver("orders", []any{}, func(b ReceiverBuilder) {
		b.Handle(tr.terminal())
	}))

	first, err := g.BuildReceivers()
	require.NoError(t, err)
	second, err := g.BuildReceivers()
	require.NoError(t, err)

	assert.Equal(t, 1, applied)
	assert.NotSame(t, first[0], second[0], "each build activates new receivers")

	deliverAll(t, second)
	assert.Equal(t, []string{"G-in", "X-in", "terminal", "X-out", "G-out"}, tr.Events())
}

func TestReceiverGroup_ReceiverAddedAfterBuild(t *testing.T) {
	tr := &callTrace{}
	g := NewReceiverGroupBuilder(newTestContainer(t), baseReceiverType, BusOptions{})
	require.NoError(t, g.AddConfigurator(func(b ReceiverBuilder) { b.Use(tr.middleware("G")) }))
	require.NoError(t, g.AddMessageReceiver("a", []any{}, func(ReceiverBuilder) {}))

	_, err := g.BuildReceivers()
	require.NoError(t, err)

	require.NoError(t, g.AddMessageReceiver("b", []any{}, func(ReceiverBuilder) {}))
	receivers, err := g.BuildReceivers()
	require.NoError(t, err)
	require.Len(t, receivers, 2)

	deliverAll(t, receivers)
	assert.Equal(t, []string{"G-in", "G-out", "G-in", "G-out"}, tr.Events())
}

func TestReceiverGroup_AddConfiguratorAfterBuildRejected(t *testing.T) {
	g := NewReceiverGroupBuilder(newTestContainer(t), baseReceiverType, BusOptions{})
	_, err := g.BuildReceivers()
	require.NoError(t, err)

	err = g.AddConfigurator(func(ReceiverBuilder) {})
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestReceiverGroup_BuildFailure(t *testing.T) {
	c := newTestContainer(t)
	g := NewReceiverGroupBuilder(c, baseReceiverType, BusOptions{})
	require.NoError(t, g.AddMessageReceiver("ok", []any{}, func(ReceiverBuilder) {}))

	require.NoError(t, c.RegisterReceiver("test.receiver.broken", func(ReceiverActivation) (Receiver, error) {
		return nil, assert.AnError
	}, ExtendsReceiver(baseReceiverType)))
	require.NoError(t, g.AddMessageReceiverOfType("broken", "test.receiver.broken", []any{}, func(ReceiverBuilder) {}))

	receivers, err := g.BuildReceivers()
	assert.Nil(t, receivers)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "broken")
}

func TestReceiverGroup_EmptyGroup(t *testing.T) {
	g := NewReceiverGroupBuilder(newTestContainer(t), baseReceiverType, BusOptions{})
	receivers, err := g.BuildReceivers()
	require.NoError(t, err)
	assert.Empty(t, receivers)
}

func TestNewReceiverGroupBuilder_Panics(t *testing.T) {
	c := newTestContainer(t)
	assert.PanicsWithValue(t, "msgbus: resolver cannot be nil", func() {
		NewReceiverGroupBuilder(nil, baseReceiverType, BusOptions{})
	})
	assert.PanicsWithValue(t, "msgbus: base receiver type cannot be empty", func() {
		NewReceiverGroupBuilder(c, "", BusOptions{})
	})
	assert.PanicsWithValue(t, "msgbus: global receiver configurator cannot be nil", func() {
		NewReceiverGroupBuilder(c, baseReceiverType, BusOptions{
			GlobalReceiverConfigurators: []ReceiverConfigurator{nil},
		})
	})
}
