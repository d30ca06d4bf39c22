// Package mysql persists the tool invocation history. It ships a JSONL-backed
// repository for single-node deployments and a MySQL repository with embedded
// schema migrations that other stores (such as the task store) share.
package mysql
