package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IvanJelicSF/superdesk-core/app/config"
	"github.com/IvanJelicSF/superdesk-core/app/scheduler"
)

func NewHandler(providers scheduler.ProviderStore, configCache *config.Cache,
	sched SchedulerInterface, version string) *Handler {
	return &Handler{
		providers:   providers,
		configCache: configCache,
		scheduler:   sched,
		version:     version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
	}

	if providers, err := h.providers.GetAll(c.Request.Context()); err == nil {
		health["providers"] = len(providers)
	}

	health["loaded_configurations"] = len(h.configCache.GetConfigs())

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListProviders(c *gin.Context) {
	providers, err := h.providers.GetAll(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_providers", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	list := make([]map[string]interface{}, 0, len(providers))
	for _, provider := range providers {
		info := map[string]interface{}{
			"id":                provider.ID,
			"name":              provider.Name,
			"source":            provider.Source,
			"feeding_service":   provider.FeedingService,
			"is_closed":         provider.IsClosed,
			"update_interval":   provider.UpdateInterval.String(),
			"last_updated":      provider.LastUpdated,
			"last_item_update":  provider.LastItemUpdate,
			"last_item_arrived": provider.LastItemArrived,
		}
		list = append(list, info)
	}

	c.JSON(http.StatusOK, gin.H{"providers": list, "count": len(list)})
}

func (h *Handler) GetProvider(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	provider, err := h.providers.GetByName(c.Request.Context(), name)
	if err != nil {
		slog.Error("Database error", "operation", "get_provider", "provider", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if provider == nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                provider.ID,
		"name":              provider.Name,
		"source":            provider.Source,
		"feeding_service":   provider.FeedingService,
		"feed_parser":       provider.FeedParser,
		"is_closed":         provider.IsClosed,
		"content_types":     provider.ContentTypes,
		"update_interval":   provider.UpdateInterval.String(),
		"last_updated":      provider.LastUpdated,
		"last_item_update":  provider.LastItemUpdate,
		"last_item_arrived": provider.LastItemArrived,
	})
}

// RunProvider triggers a provider update. With ?sync=true the update runs
// inline and re-ingests the provider's full history.
func (h *Handler) RunProvider(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	provider, err := h.providers.GetByName(c.Request.Context(), name)
	if err != nil {
		slog.Error("Database error", "operation", "run_provider", "provider", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if provider == nil {
		c.Status(http.StatusNotFound)
		return
	}
	if provider.IsClosed {
		c.JSON(http.StatusConflict, gin.H{"error": "provider is closed"})
		return
	}

	sync := c.Query("sync") == "true"

	if err := h.scheduler.UpdateAll(c.Request.Context(), name, sync); err != nil {
		slog.Error("Provider update failed", "provider", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"provider": name, "sync": sync})
}
