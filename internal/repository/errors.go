package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// 条件付き更新で対象行が無かった（状態が変わっていた）
	ErrConflict = errors.New("conflict")
)
