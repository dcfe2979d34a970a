package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementCacheGetMiss(t *testing.T) {
	c := NewStatementCache(4)
	_, ok := c.Get("select 1")
	assert.False(t, ok)
}

func TestStatementCacheInsertAndGet(t *testing.T) {
	c := NewStatementCache(4)
	stmt := &Statement{ID: hashSQL("select 1"), SQL: "select 1", Name: statementName(hashSQL("select 1"))}
	evicted := c.Insert(stmt)
	assert.Nil(t, evicted)

	got, ok := c.Get("select 1")
	require.True(t, ok)
	assert.Equal(t, stmt.Name, got.Name)
	assert.Equal(t, 1, c.Len())
}

func TestStatementCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewStatementCache(2)

	insert := func(sql string) *Statement {
		stmt := &Statement{ID: hashSQL(sql), SQL: sql, Name: statementName(hashSQL(sql))}
		return stmt
	}

	s1 := insert("select 1")
	s2 := insert("select 2")
	s3 := insert("select 3")

	require.Nil(t, c.Insert(s1))
	require.Nil(t, c.Insert(s2))

	// touch s1 so s2 becomes the LRU victim
	_, _ = c.Get("select 1")

	evicted := c.Insert(s3)
	require.NotNil(t, evicted)
	assert.Equal(t, s2.ID, evicted.ID)

	_, ok := c.Get("select 2")
	assert.False(t, ok)

	_, ok = c.Get("select 1")
	assert.True(t, ok)
	_, ok = c.Get("select 3")
	assert.True(t, ok)
}

func TestStatementCacheInsertExistingUpdatesWithoutEviction(t *testing.T) {
	c := NewStatementCache(1)
	stmt := &Statement{ID: hashSQL("select 1"), SQL: "select 1", Name: statementName(hashSQL("select 1"))}
	require.Nil(t, c.Insert(stmt))

	updated := &Statement{ID: stmt.ID, SQL: stmt.SQL, Name: stmt.Name, ParamTypes: []Oid{23}}
	evicted := c.Insert(updated)
	assert.Nil(t, evicted)
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get("select 1")
	require.True(t, ok)
	assert.Equal(t, []Oid{23}, got.ParamTypes)
}

func TestHashSQLIsDeterministic(t *testing.T) {
	assert.Equal(t, hashSQL("select 1"), hashSQL("select 1"))
	assert.NotEqual(t, hashSQL("select 1"), hashSQL("select 2"))
}
