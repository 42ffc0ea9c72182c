package constants

import (
	"github.com/go-playground/validator/v10"
)

type contextKey int

const (
	PoolKey contextKey = iota
	TxKey
	ParamsKey
	LoggerKey
	ActorKey
)

var Validate = validator.New()
