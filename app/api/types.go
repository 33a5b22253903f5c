package api

import (
	"context"

	"github.com/IvanJelicSF/superdesk-core/app/config"
	"github.com/IvanJelicSF/superdesk-core/app/scheduler"
)

// SchedulerInterface is the trigger surface the API exposes.
type SchedulerInterface interface {
	UpdateAll(ctx context.Context, providerName string, sync bool) error
}

var _ SchedulerInterface = (*scheduler.Scheduler)(nil)

type Handler struct {
	providers   scheduler.ProviderStore
	configCache *config.Cache
	scheduler   SchedulerInterface
	version     string
}
