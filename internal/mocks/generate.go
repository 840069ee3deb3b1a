// Package mocks provides mock implementations for testing the pullcheck review pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// core port interfaces. The mocks are generated using go:generate directives.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	store := mocks.NewMockResultStore(ctrl)
//	store.EXPECT().GetReview(gomock.Any(), gomock.Any()).Return(nil, nil)
package mocks

// Generate mock for ResultStore interface from internal/core package.
// This creates MockResultStore with methods:
// SaveRecord, GetRecord, SaveReview, GetReview, Health
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=store_mock.go github.com/pullcheck/pullcheck/internal/core ResultStore

// Generate mock for JobQueue interface from internal/core package.
// This creates MockJobQueue with methods:
// Create, GetByID, ReserveNext, Heartbeat, Complete, Fail, Stats
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=queue_mock.go github.com/pullcheck/pullcheck/internal/core JobQueue

// Generate mocks for the worker collaborators ArtifactFetcher and Analyzer.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=collaborators_mock.go github.com/pullcheck/pullcheck/internal/core ArtifactFetcher,Analyzer
