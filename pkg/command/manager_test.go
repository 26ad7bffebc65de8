package command

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
)

func testFactory() *cobra.Command {
	root := &cobra.Command{Use: "bot"}
	root.AddCommand(&cobra.Command{
		Use: "echo",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Print("echo:")
			for _, a := range args {
				cmd.Print(" " + a)
			}
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:  "set",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			execCtx := FromContext(cmd.Context())
			if err := execCtx.SaveValues(ContextValues{args[0]: args[1]}); err != nil {
				return err
			}
			execCtx.SetResponsePayload("saved", execCtx.Values)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use: "fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			FromContext(cmd.Context()).SetError(errors.New("broken"), "something broke")
			return nil
		},
	})
	return root
}

func run(t *testing.T, m *Manager, session, text string) (string, botcore.StreamChunk) {
	t.Helper()
	return botcore.Drain(m.Trigger(context.Background(), botcore.Update{SessionID: session, Text: text}, "stream"))
}

func TestManager_StreamsOutput(t *testing.T) {
	m := NewManager(testFactory, NewMemoryStore())
	text, final := run(t, m, "s1", "/echo a b")
	assert.Equal(t, "echo: a b", text)
	assert.True(t, final.IsFinal)
	assert.NoError(t, final.Err)

	// 与 root 同名的首个 token 会被忽略
	text, _ = run(t, m, "s1", "/bot echo x")
	assert.Equal(t, "echo: x", text)
}

func TestManager_PersistsValuesPerSession(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(testFactory, store)

	text, final := run(t, m, "s1", "/set mode rag")
	assert.Equal(t, "saved", text)
	assert.Equal(t, ContextValues{"mode": "rag"}, final.Payload)

	v, ok := store.Get("s1", "mode")
	require.True(t, ok)
	assert.Equal(t, "rag", v)

	_, ok = store.Get("s2", "mode")
	assert.False(t, ok)
}

func TestManager_Errors(t *testing.T) {
	m := NewManager(testFactory, nil)

	_, final := run(t, m, "s1", "hello")
	assert.ErrorIs(t, final.Err, ErrCommandRequired)

	_, final = run(t, m, "s1", "/nope")
	assert.ErrorIs(t, final.Err, ErrCommandNotFound)

	_, final = run(t, m, "s1", "/set onlyone")
	assert.Error(t, final.Err)

	text, final := run(t, m, "s1", "/fail")
	assert.Equal(t, "something broke", text)
	assert.EqualError(t, final.Err, "broken")

	_, final = run(t, NewManager(nil, nil), "s1", "/echo")
	assert.ErrorIs(t, final.Err, ErrNotInitialized)
}

func TestMemoryStore_SaveMerges(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Save("k", ContextValues{"a": "1"}))
	require.NoError(t, s.Save("k", ContextValues{"b": "2", "a": "3"}))

	got, err := s.Load("k")
	require.NoError(t, err)
	assert.Equal(t, ContextValues{"a": "3", "b": "2"}, got)

	got["a"] = "mutated"
	again, _ := s.Load("k")
	assert.Equal(t, "3", again["a"])

	missing, err := s.Load("other")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}
