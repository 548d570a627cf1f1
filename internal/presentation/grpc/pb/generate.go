// Package pb ledger.v1.LedgerServiceのprotobufメッセージとgRPCスタブ
package pb

//go:generate protoc -I ../../../../proto --go_out=. --go_opt=module=credit-ledger/internal/presentation/grpc/pb --go-grpc_out=. --go-grpc_opt=module=credit-ledger/internal/presentation/grpc/pb ledger/v1/ledger.proto
