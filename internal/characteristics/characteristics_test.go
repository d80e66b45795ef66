package characteristics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defsJSON = `{
  "level": {
    "db_column": "level",
    "type": "int",
    "models": ["creatures", "monsters"],
    "applies_to": ["monster", "class"],
    "per_entity": {
      "monster": {"min": 1, "max": 20, "required": true},
      "class": {"min": 1, "max": 20}
    }
  },
  "life": {
    "db_column": "life_points",
    "type": "int",
    "models": ["creatures"],
    "applies_to": ["monster"],
    "per_entity": {
      "monster": {"min": 1, "required": true, "validation_message": "life must stay between :min and :max"}
    }
  },
  "size": {
    "db_column": "size",
    "type": "array",
    "models": ["creatures"],
    "applies_to": ["monster"],
    "per_entity": {
      "monster": {"value_available": ["tiny", "small", "medium", "large", "huge"]}
    }
  }
}`

func fileRepo(t *testing.T) *FileRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "characteristics.json")
	require.NoError(t, os.WriteFile(path, []byte(defsJSON), 0o644))
	repo, err := NewFileRepository(path)
	require.NoError(t, err)
	return repo
}

func TestFileRepository(t *testing.T) {
	repo := fileRepo(t)
	ctx := context.Background()

	defs, err := repo.Characteristics(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 3)

	level := defs["level"]
	assert.Equal(t, "level", level.ID)
	assert.Equal(t, TypeInt, level.Type)
	assert.True(t, level.AppliesToEntity("monster"))
	assert.False(t, level.AppliesToEntity("item"))
	require.NotNil(t, level.PerEntity["monster"].Min)
	assert.Equal(t, 1, *level.PerEntity["monster"].Min)
	assert.True(t, level.PerEntity["monster"].Required)
}

func TestFileRepositoryLimitsFor(t *testing.T) {
	repo := fileRepo(t)
	ctx := context.Background()

	c, err := repo.LimitsFor(ctx, "monster", "life_points")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, *c.Min)
	assert.Nil(t, c.Max)

	// Known column, entity without constraints.
	c, err = repo.LimitsFor(ctx, "item", "life_points")
	require.NoError(t, err)
	assert.Nil(t, c)

	// Unknown column.
	c, err = repo.LimitsFor(ctx, "monster", "mana")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewFileRepositoryErrors(t *testing.T) {
	_, err := NewFileRepository(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = NewFileRepository(path)
	assert.Error(t, err)
}

func TestGroupIndex(t *testing.T) {
	repo := fileRepo(t)
	defs, err := repo.Characteristics(context.Background())
	require.NoError(t, err)

	idx := NewGroupIndex(defs)
	assert.ElementsMatch(t, []string{"creatures", "monsters"}, idx.GroupsFor("monster", "level"))
	// Storage column aliases resolve too.
	assert.Equal(t, []string{"creatures"}, idx.GroupsFor("monster", "life_points"))
	assert.Equal(t, []string{"creatures"}, idx.GroupsFor("monster", "life"))
	assert.Nil(t, idx.GroupsFor("monster", "unknown"))
}

func TestFileFormulas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formulas.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"monster": {
			"level": "floor([level] / 10)",
			"strength": {"characteristic": "value", "0": 1, "100": 2}
		}
	}`), 0o644))

	f, err := NewFileFormulas(path)
	require.NoError(t, err)

	expr, err := f.Expression("level", "monster")
	require.NoError(t, err)
	assert.Equal(t, "floor([level] / 10)", expr)

	expr, err = f.Expression("strength", "monster")
	require.NoError(t, err)
	assert.JSONEq(t, `{"characteristic": "value", "0": 1, "100": 2}`, expr)

	expr, err = f.Expression("life", "monster")
	require.NoError(t, err)
	assert.Empty(t, expr)

	expr, err = f.Expression("level", "item")
	require.NoError(t, err)
	assert.Empty(t, expr)
}
