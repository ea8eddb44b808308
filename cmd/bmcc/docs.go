package main

//go:generate swag init -g cmd/bmcc/main.go -o docs

// @title           bmcc API
// @version         0.1.0
// @description     Beacon ingestion, asset tracking and flight predictions for balloon missions.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
