package permissions

import (
	"context"

	"github.com/stafflink/engage-sdk/pkg/constants"
)

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actor)
}

func UseActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(constants.ActorKey).(Actor)
	return actor, ok
}
