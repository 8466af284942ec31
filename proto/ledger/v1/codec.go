// Package ledgerv1 содержит контракт gRPC-сервиса учёта: типы сообщений,
// дескриптор сервиса и JSON-кодек, под которым сообщения передаются.
package ledgerv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName — content-subtype кодека ("application/grpc+json").
const CodecName = "json"

// Codec сериализует сообщения сервиса в JSON.
type Codec struct{}

// Marshal реализует encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ledger codec marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal реализует encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ledger codec unmarshal %T: %w", v, err)
	}
	return nil
}

// Name реализует encoding.Codec.
func (Codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(Codec{})
}

// CallOption выбирает JSON-кодек для вызовов клиента.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}

// DialOption включает JSON-кодек для всех вызовов соединения.
func DialOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(CallOption())
}
