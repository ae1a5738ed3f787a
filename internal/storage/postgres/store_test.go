package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRows feeds canned row values through the stringRows seam.
type fakeRows struct {
	rows    [][]string
	pos     int
	scanErr error
	rowsErr error
	closed  bool
}

func (f *fakeRows) Next() bool {
	if f.pos >= len(f.rows) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.rows[f.pos-1]
	for i, d := range dest {
		*(d.(*string)) = row[i]
	}
	return nil
}

func (f *fakeRows) Close() { f.closed = true }
func (f *fakeRows) Err() error { return f.rowsErr }

func TestCollectStrings(t *testing.T) {
	t.Run("Collects values and closes the rows", func(t *testing.T) {
		rows := &fakeRows{rows: [][]string{{"U1"}, {"U2"}}}

		values, err := collectStrings(rows)

		require.NoError(t, err)
		assert.Equal(t, []string{"U1", "U2"}, values)
		assert.True(t, rows.closed)
	})

	t.Run("Empty result is nil, not an error", func(t *testing.T) {
		values, err := collectStrings(&fakeRows{})

		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("Scan failure propagates", func(t *testing.T) {
		rows := &fakeRows{rows: [][]string{{"U1"}}, scanErr: assert.AnError}

		_, err := collectStrings(rows)

		assert.Error(t, err)
		assert.True(t, rows.closed)
	})

	t.Run("Iteration error propagates", func(t *testing.T) {
		rows := &fakeRows{rows: [][]string{{"U1"}}, rowsErr: assert.AnError}

		_, err := collectStrings(rows)

		assert.Error(t, err)
	})
}

func TestCollectTokens(t *testing.T) {
	t.Run("Groups tokens per user", func(t *testing.T) {
		rows := &fakeRows{rows: [][]string{
			{"U1", "tok-a"},
			{"U2", "tok-b"},
			{"U1", "tok-c"},
		}}

		tokens, err := collectTokens(rows)

		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			"U1": {"tok-a", "tok-c"},
			"U2": {"tok-b"},
		}, tokens)
		assert.True(t, rows.closed)
	})

	t.Run("No rows yields an empty map", func(t *testing.T) {
		tokens, err := collectTokens(&fakeRows{})

		require.NoError(t, err)
		assert.NotNil(t, tokens)
		assert.Empty(t, tokens)
	})

	t.Run("Scan failure propagates", func(t *testing.T) {
		rows := &fakeRows{rows: [][]string{{"U1", "tok-a"}}, scanErr: assert.AnError}

		_, err := collectTokens(rows)

		assert.Error(t, err)
		assert.True(t, rows.closed)
	})
}
