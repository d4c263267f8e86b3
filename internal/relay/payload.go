package relay

import (
	"encoding/json"

	"github.com/snippetlab/collab-service/internal/domain"
)

func mustErrorPayload(code, msg string) json.RawMessage {
	b, err := json.Marshal(domain.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		// ErrorPayload — плоская структура, сюда не попадаем
		panic(err)
	}
	return b
}
