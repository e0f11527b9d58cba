package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeKeyExpire     = "apikey:expire:check"
	TypeKeyExpiryWarn = "apikey:expiry:warn"
)

type ExpireKeysPayload struct{}

type ExpiryWarnPayload struct{}

func NewKeyExpireTask(opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(ExpireKeysPayload{})
	if err != nil {
		return nil, err
	}

	allOpts := append(opts, asynq.Unique(1*time.Hour))
	return asynq.NewTask(TypeKeyExpire, payloadBytes, allOpts...), nil
}

func NewExpiryWarnTask(opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(ExpiryWarnPayload{})
	if err != nil {
		return nil, err
	}

	allOpts := append(opts, asynq.Unique(12*time.Hour))
	return asynq.NewTask(TypeKeyExpiryWarn, payloadBytes, allOpts...), nil
}
