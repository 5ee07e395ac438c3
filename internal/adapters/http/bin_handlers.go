package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/usecases"
)

func binError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, "bin not found")
	case errors.Is(err, usecases.ErrNoCoordinates):
		return errConflict(c, "pick a point on the map or send coordinates")
	case errors.Is(err, usecases.ErrInvalidBin):
		return errBadRequest(c, err.Error())
	default:
		return errInternal(c, err)
	}
}

// ListBinsHandler returns every bin, paginated.
func ListBinsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bins, err := deps.Bins.List(c.UserContext())
		if err != nil {
			return binError(c, err)
		}
		offset, limit := pageParams(c)
		page, pg := paginate(bins, offset, limit)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// GetBinHandler returns a single bin.
func GetBinHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bin, err := deps.Bins.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return binError(c, err)
		}
		return c.JSON(bin)
	}
}

// NearbyBinsHandler returns bins within radius meters of lat/lon, nearest first.
func NearbyBinsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		center := domain.GeoPoint{Lat: c.QueryFloat("lat"), Lon: c.QueryFloat("lon")}
		if !center.Valid() {
			return errBadRequest(c, "lat/lon out of range")
		}
		radius := c.QueryFloat("radius", 500)
		if radius <= 0 || radius > 10000 {
			return errBadRequest(c, "radius must be between 1 and 10000 meters")
		}

		bins, err := deps.Bins.Nearby(c.UserContext(), center, radius, c.QueryInt("limit", 50))
		if err != nil {
			return binError(c, err)
		}
		if bins == nil {
			bins = []usecases.NearbyBin{}
		}
		return c.JSON(bins)
	}
}

// CreateBinHandler is the add-bin form submit.
func CreateBinHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req usecases.CreateBin
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Status != "" {
			st, err := domain.ParseBinStatus(string(req.Status))
			if err != nil {
				return errBadRequest(c, err.Error())
			}
			req.Status = st
		}

		bin, err := deps.Bins.Create(c.UserContext(), req)
		if err != nil {
			return binError(c, err)
		}
		LoggerFromCtx(c.UserContext()).Info("bin created", "id", bin.ID, "label", bin.Label)
		c.Location("/v1/bins/" + bin.ID)
		return c.Status(fiber.StatusCreated).JSON(bin)
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateBinStatusHandler marks a bin empty or full.
func UpdateBinStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req statusRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		st, err := domain.ParseBinStatus(req.Status)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		bin, err := deps.Bins.SetStatus(c.UserContext(), c.Params("id"), st)
		if err != nil {
			return binError(c, err)
		}
		return c.JSON(bin)
	}
}

// PickBinLocationHandler puts the map into selection mode. The next tap
// becomes the draft coordinates of the add-bin form.
func PickBinLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bins := deps.Bins
		err := deps.Bridge.BeginPick(c.UserContext(), func(p domain.GeoPoint) {
			bins.SetDraftPoint(p)
		})
		if err != nil {
			return mapError(c, err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// DraftPointHandler returns the coordinates picked for the add-bin form.
func DraftPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := deps.Bins.DraftPoint()
		if !ok {
			return errNotFound(c, "no point picked yet")
		}
		return c.JSON(p)
	}
}
