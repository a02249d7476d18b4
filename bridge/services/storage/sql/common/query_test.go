/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common_test

import (
	"testing"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/sql/common"
	"github.com/stretchr/testify/assert"
)

func TestSelect_Compile(t *testing.T) {
	query, err := common.NewSelect("id", "name").From("users").Where("id = $1").Compile()
	assert.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE id = $1", query)

	query, err = common.NewSelect().From("users").OrderBy("stored_at DESC").Limit("$1").Compile()
	assert.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users ORDER BY stored_at DESC LIMIT $1", query)

	_, err = common.NewSelect("id").Compile()
	assert.Error(t, err)
}

func TestInsert_Compile(t *testing.T) {
	query, err := common.NewInsertInto("users").Rows("id, name").Compile()
	assert.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (id, name) VALUES ($1, $2)", query)

	query, err = common.NewInsertInto("users").Rows("id, name, age").OnConflict("id", "name, age").UpdateWhere("users.age < excluded.age").Compile()
	assert.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (id, name, age) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET name = excluded.name, age = excluded.age WHERE users.age < excluded.age", query)

	query, err = common.NewInsertInto("users").Rows("id").OnConflict("id", "").Compile()
	assert.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", query)

	_, err = common.NewInsertInto("users").Compile()
	assert.Error(t, err)
}

func TestUpdate_Compile(t *testing.T) {
	query, err := common.NewUpdate("users").Set("name, age").Where("id").Compile()
	assert.NoError(t, err)
	assert.Equal(t, "UPDATE users SET name = $1, age = $2 WHERE id = $3", query)

	query, err = common.NewUpdate("users").Set("name").Where("id = $2 AND status = $3").Compile()
	assert.NoError(t, err)
	assert.Equal(t, "UPDATE users SET name = $1 WHERE id = $2 AND status = $3", query)

	_, err = common.NewUpdate("").Set("name").Compile()
	assert.Error(t, err)
}

func TestDelete_Compile(t *testing.T) {
	query, err := common.NewDeleteFrom("users").Where("id = $1").Compile()
	assert.NoError(t, err)
	assert.Equal(t, "DELETE FROM users WHERE id = $1", query)

	_, err = common.NewDeleteFrom("").Where("id = 1").Compile()
	assert.Error(t, err)
}

func TestConditions(t *testing.T) {
	c := &common.Conditions{}
	c.AnyEq("alice", "sender", "receiver").In("status", 0, 1).In("tx_type").Lt("stored_at", 10)
	assert.Equal(t, "(sender = $1 OR receiver = $1) AND status IN ($2, $3) AND stored_at < $4", c.String())
	assert.Equal(t, []any{"alice", 0, 1, 10}, c.Args())
	assert.Equal(t, "$5", c.Next(5))
}
