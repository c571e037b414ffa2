// Package mocks provides gomock implementations of the core ports for service and adapter tests.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/target/engagement-ledger/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=payment_gateway_mock.go github.com/target/engagement-ledger/internal/core PaymentGateway
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=notification_sink_mock.go github.com/target/engagement-ledger/internal/core NotificationSink
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=replay_guard_mock.go github.com/target/engagement-ledger/internal/core ReplayGuard
