package display

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommandTree() (*cobra.Command, *cobra.Command) {
	root := &cobra.Command{Use: "exportsync"}
	root.PersistentFlags().Bool("json", false, "")
	child := &cobra.Command{Use: "runs", Run: func(*cobra.Command, []string) {}}
	root.AddCommand(child)
	return root, child
}

func TestShouldOutputJSON(t *testing.T) {
	assert.False(t, ShouldOutputJSON(nil))

	root, child := newCommandTree()
	assert.False(t, ShouldOutputJSON(child))

	root.SetArgs([]string{"runs", "--json"})
	require.NoError(t, root.Execute())
	assert.True(t, ShouldOutputJSON(child))
}

func TestShouldOutputJSON_LocalFlagWins(t *testing.T) {
	root, child := newCommandTree()
	child.Flags().BoolP("json", "j", false, "")
	root.PersistentFlags().Set("json", "true")

	root.SetArgs([]string{"runs", "--json=false"})
	require.NoError(t, root.Execute())
	assert.False(t, ShouldOutputJSON(child))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]int{"total": 3}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got["total"])
	assert.Contains(t, buf.String(), "\n  ", "pretty in tests")
}

func TestWriteTable(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []string{"SYMBOL", "NAME"}, [][]string{
		{"TCS", "Tata Consultancy Services Ltd"},
		{"INFY", "Infosys Ltd"},
	}))

	out := buf.String()
	assert.Contains(t, out, "SYMBOL")
	assert.Contains(t, out, "Tata Consultancy Services Ltd")
	assert.Contains(t, out, "INFY")
}
