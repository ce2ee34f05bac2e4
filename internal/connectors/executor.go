package connectors

/*
Файл executor.go — gRPC-адаптер внешнего исполнителя платежей.
Сам перевод on-chain вне зоны ответственности ядра: мы отправляем задание
и получаем ссылку на транзакцию; подтверждение перевода позже приходит
вебхуком. Полезная нагрузка ходит как protobuf Struct (динамическая схема),
поэтому адаптеру не нужен сгенерированный клиентский код — достаточно
Invoke по полному имени метода.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	opPaymentTransfer = "payment.transfer"

	executeMethod = "/lendgate.executor.v1.PaymentExecutor/Execute"
)

// GRPCExecutor — транспорт к исполнителю платежей.
type GRPCExecutor struct {
	conn *grpc.ClientConn
}

func NewGRPCExecutor(conn *grpc.ClientConn) *GRPCExecutor {
	return &GRPCExecutor{conn: conn}
}

// Call реализует Caller: JSON -> structpb.Struct -> gRPC -> JSON.
func (a *GRPCExecutor) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("executor: unmarshal payload: %w", err)
	}
	m["op"] = op

	in, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("executor: build proto struct: %w", err)
	}

	// Защитный таймаут уровня адаптера независимо от внешних оберток
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out := new(structpb.Struct)
	if err := a.conn.Invoke(ctx, executeMethod, in, out); err != nil {
		return nil, fmt.Errorf("executor: call failed: %w", err)
	}

	fields := out.AsMap()
	if errMsg, ok := fields["error"].(string); ok && errMsg != "" {
		return nil, fmt.Errorf("executor: returned error: %s", errMsg)
	}

	result, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("executor: marshal result: %w", err)
	}
	return result, nil
}

// PaymentFacade — типизированная обертка, реализует auction.Transferer.
type PaymentFacade struct {
	caller Caller
}

func NewPaymentFacade(caller Caller) *PaymentFacade {
	return &PaymentFacade{caller: caller}
}

// Transfer отправляет задание на перевод и возвращает ссылку транзакции.
func (f *PaymentFacade) Transfer(ctx context.Context, loanID string, agentFID int64, amount int64) (string, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"loan_id":      loanID,
		"agent_fid":    agentFID,
		"amount_micro": amount,
	})

	raw, err := f.caller.Call(ctx, opPaymentTransfer, payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		TxRef string `json:"tx_ref"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("executor: malformed response: %w", err)
	}
	if resp.TxRef == "" {
		return "", fmt.Errorf("executor: empty tx reference")
	}
	return resp.TxRef, nil
}
