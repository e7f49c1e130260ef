package main

// General API documentation for swaggo. Run `swag init -g cmd/shardgen/docs.go` to regenerate.
//
// @title           shardgen API
// @version         1.0
// @description     Greedy text generation for models whose checkpoints are served by an external sharded-inference runtime.
//
// @BasePath  /
//
// @schemes http
