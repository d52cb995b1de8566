// Copyright 2021 ecodeclub
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package executor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Query 发到某一个物理数据源上的查询
type Query struct {
	SQL  string
	Args []any
	// DataSource 物理数据源的名字
	DataSource string
}

type Executor interface {
	Query(ctx context.Context, query Query) (*sql.Rows, error)
	Exec(ctx context.Context, query Query) (sql.Result, error)
}

// DataSource 一个物理数据源
type DataSource interface {
	Executor
	Close() error
}

var _ DataSource = &DB{}

// DB 用 *sql.DB 实现的数据源。
// 开启 prepare 之后同样的 SQL 只会预编译一次
type DB struct {
	db      *sql.DB
	prepare bool

	lock  sync.RWMutex
	stmts map[string]*sql.Stmt
}

type DBOption func(db *DB)

func WithPrepare(prepare bool) DBOption {
	return func(db *DB) {
		db.prepare = prepare
	}
}

func OpenDB(db *sql.DB, opts ...DBOption) *DB {
	res := &DB{db: db, stmts: make(map[string]*sql.Stmt, 8)}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

func (db *DB) Query(ctx context.Context, query Query) (*sql.Rows, error) {
	if !db.prepare {
		return db.db.QueryContext(ctx, query.SQL, query.Args...)
	}
	stmt, err := db.findOrPrepare(ctx, query.SQL)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, query.Args...)
}

func (db *DB) Exec(ctx context.Context, query Query) (sql.Result, error) {
	if !db.prepare {
		return db.db.ExecContext(ctx, query.SQL, query.Args...)
	}
	stmt, err := db.findOrPrepare(ctx, query.SQL)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, query.Args...)
}

func (db *DB) findOrPrepare(ctx context.Context, query string) (*sql.Stmt, error) {
	db.lock.RLock()
	stmt, ok := db.stmts[query]
	db.lock.RUnlock()
	if ok {
		return stmt, nil
	}
	db.lock.Lock()
	defer db.lock.Unlock()
	if stmt, ok = db.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := db.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	db.stmts[query] = stmt
	return stmt, nil
}

func (db *DB) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()
	var err error
	for query, stmt := range db.stmts {
		if er := stmt.Close(); er != nil {
			err = multierr.Combine(err, fmt.Errorf("关闭预编译语句 [%s] 失败: %w", query, er))
		}
	}
	db.stmts = make(map[string]*sql.Stmt, 8)
	return multierr.Combine(err, db.db.Close())
}
