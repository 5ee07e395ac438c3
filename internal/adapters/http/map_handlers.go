package http

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/geocode"
	"github.com/samirrijal/wastemap/internal/mapbridge"
	"github.com/samirrijal/wastemap/internal/surface"
)

// mapError translates bridge errors into API errors.
func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, mapbridge.ErrNotMounted):
		return errUnavailable(c, "map is not mounted")
	case errors.Is(err, mapbridge.ErrUnknownPrompt):
		return errNotFound(c, "no such prompt")
	case errors.Is(err, geocode.ErrNoSuchResult):
		return errNotFound(c, "no such search result")
	case errors.Is(err, context.DeadlineExceeded):
		return errUnavailable(c, "map did not respond in time")
	default:
		return errInternal(c, err)
	}
}

// MapPageHandler serves the embedded map page, themed from the current props.
func MapPageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg := deps.Page
		if props, err := deps.Bridge.Props(c.UserContext()); err == nil {
			cfg.Theme = props.Theme()
			cfg.Center = props.DefaultCenter
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return surface.RenderPage(c, cfg)
	}
}

// MapStateHandler returns a snapshot of the map component.
func MapStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.Bridge.Snapshot(c.UserContext())
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(snap)
	}
}

// MapPropsHandler returns the current props.
func MapPropsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		props, err := deps.Bridge.Props(c.UserContext())
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(props)
	}
}

type propsPatch struct {
	// SelectedID selects a location by id; an empty string clears the selection.
	SelectedID          *string          `json:"selected_id"`
	DefaultCenter       *domain.GeoPoint `json:"default_center"`
	IsDarkMode          *bool            `json:"is_dark_mode"`
	IsSelectingLocation *bool            `json:"is_selecting_location"`
}

// PatchMapPropsHandler changes individual props. Omitted fields keep their value.
func PatchMapPropsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req propsPatch
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.DefaultCenter != nil && !req.DefaultCenter.Valid() {
			return errBadRequest(c, "default_center out of range")
		}

		ctx := c.UserContext()
		var selected *domain.TrashLocation
		if req.SelectedID != nil && *req.SelectedID != "" {
			props, err := deps.Bridge.Props(ctx)
			if err != nil {
				return mapError(c, err)
			}
			for i := range props.Locations {
				if props.Locations[i].ID == *req.SelectedID {
					loc := props.Locations[i]
					selected = &loc
					break
				}
			}
			if selected == nil {
				return errNotFound(c, "location "+*req.SelectedID+" is not on the map")
			}
		}

		err := deps.Bridge.UpdateProps(ctx, func(p *mapbridge.Props) {
			if req.SelectedID != nil {
				p.SelectedLocation = selected
			}
			if req.DefaultCenter != nil {
				p.DefaultCenter = *req.DefaultCenter
			}
			if req.IsDarkMode != nil {
				p.IsDarkMode = *req.IsDarkMode
			}
			if req.IsSelectingLocation != nil {
				p.IsSelectingLocation = *req.IsSelectingLocation
			}
		})
		if err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PutMapLocationsHandler replaces the marker list directly. Hosts without a
// database use this instead of the bins API.
func PutMapLocationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var locs []domain.TrashLocation
		if err := c.BodyParser(&locs); err != nil {
			return errBadRequest(c, "body must be a JSON array of locations")
		}
		if err := deps.Bridge.SetLocations(c.UserContext(), locs); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// CenterOnMeHandler is the "my location" button.
func CenterOnMeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Bridge.CenterOnMe(c.UserContext()); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// CancelPickHandler leaves location-selection mode.
func CancelPickHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Bridge.CancelPick(c.UserContext()); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type searchQueryRequest struct {
	Query string `json:"query"`
}

// SetSearchQueryHandler feeds the search box. Results arrive asynchronously
// and show up in the map state.
func SetSearchQueryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req searchQueryRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Query) > 200 {
			return errBadRequest(c, "query too long (max 200 characters)")
		}
		if err := deps.Bridge.SetSearchQuery(c.UserContext(), req.Query); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// SearchStateHandler returns the search box state.
func SearchStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.Bridge.Snapshot(c.UserContext())
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(snap.Search)
	}
}

type selectResultRequest struct {
	Index int `json:"index"`
}

// SelectSearchResultHandler picks one of the current results and recentres the map.
func SelectSearchResultHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req selectResultRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		r, err := deps.Bridge.SelectSearchResult(c.UserContext(), req.Index)
		if err != nil {
			return mapError(c, err)
		}
		return c.JSON(r)
	}
}

// AlertsHandler lists the alerts currently shown to the user.
func AlertsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Alerts == nil {
			return c.JSON([]domain.Alert{})
		}
		return c.JSON(deps.Alerts.Active())
	}
}

type promptResponse struct {
	Action string `json:"action"`
}

// RespondPromptHandler answers an alert with one of its actions.
func RespondPromptHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind := domain.AlertKind(strings.TrimSpace(c.Params("kind")))
		var req promptResponse
		if err := c.BodyParser(&req); err != nil || req.Action == "" {
			return errBadRequest(c, "action is required")
		}
		if err := deps.Bridge.RespondPrompt(c.UserContext(), kind, req.Action); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// RetrySurfaceHandler asks the surface to reload after an error.
func RetrySurfaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Bridge.RetrySurface(c.UserContext()); err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}
