// Package mocks provides mock implementations for testing the unsubscribe task system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockTaskRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(task, nil)
package mocks

// Generate mock for TaskRepository interface from internal/core package.
// This creates MockTaskRepository with methods for all TaskRepository interface methods:
// Create, GetByID, ReserveNext, WaitForNotification, Heartbeat, Complete, Fail, Stats, ListByBatchJob
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=task_repository_mock.go github.com/clodoaldofavaro/email-sort-app-backend/internal/core TaskRepository

// Generate mock for TokenVerifier interface from internal/ports package.
// This creates MockTokenVerifier with its single Verify method.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=token_verifier_mock.go github.com/clodoaldofavaro/email-sort-app-backend/internal/ports TokenVerifier
