package handlers

import (
	"errors"
	"fmt"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"

	"github.com/alexander-bruun/vitrine/fetcher"
	"github.com/alexander-bruun/vitrine/proxy"
	"github.com/alexander-bruun/vitrine/resolver"
	"github.com/alexander-bruun/vitrine/transcoder"
)

const immutableCacheControl = "public, max-age=31536000, immutable"

// HandleStorageImage serves a stored image through the candidate resolver.
// Misses get the placeholder with a 404, or the attempt report in debug mode.
func HandleStorageImage(c *fiber.Ctx) error {
	path := c.Query("path")
	bucket := c.Query("bucket")
	debug := services.DebugAllowed && c.QueryBool("debug")

	obj, report, err := services.Resolver.Resolve(c.UserContext(), path, bucket)
	if debug {
		status := fiber.StatusOK
		if err != nil {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(report)
	}
	if err != nil {
		if !errors.Is(err, resolver.ErrInvalidPath) {
			log.Debugf("Stored image %q not found after %d attempts", path, len(report.Attempts))
		}
		return sendPlaceholder(c, fiber.StatusNotFound)
	}

	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set(fiber.HeaderCacheControl, immutableCacheControl)
	return c.Send(obj.Data)
}

// HandleProxyImage fetches an external image, optionally transformed
func HandleProxyImage(c *fiber.Ctx) error {
	var req transcoder.TransformRequest
	var err error
	if req.Width, err = queryUint(c, "w"); err != nil {
		return sendBadRequestError(c, "w must be a positive integer")
	}
	if req.Height, err = queryUint(c, "h"); err != nil {
		return sendBadRequestError(c, "h must be a positive integer")
	}
	if req.Quality, err = queryUint(c, "q"); err != nil || req.Quality > 100 {
		return sendBadRequestError(c, "q must be between 1 and 100")
	}
	req.Format = c.Query("format")

	res, err := services.Proxy.Get(c.UserContext(), c.Query("url"), req)
	if err != nil {
		var notImage *fetcher.NotAnImageError
		switch {
		case errors.Is(err, proxy.ErrInvalidURL):
			return sendBadRequestError(c, "url must be an absolute http(s) URL")
		case errors.As(err, &notImage):
			return sendUnsupportedMediaError(c, fmt.Sprintf("upstream response is not an image (%s)", notImage.ContentType))
		default:
			log.Warnf("Proxy fetch failed: %v", err)
			return sendPlaceholder(c, fiber.StatusBadGateway)
		}
	}

	c.Set(fiber.HeaderContentType, res.ContentType)
	c.Set(fiber.HeaderCacheControl, immutableCacheControl)
	return c.Send(res.Data)
}

func sendPlaceholder(c *fiber.Ctx, status int) error {
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(status).Send(resolver.Placeholder())
}

// queryUint parses an optional unsigned query argument. Absent means 0.
func queryUint(c *fiber.Ctx, name string) (int, error) {
	raw := c.Context().QueryArgs().Peek(name)
	if len(raw) == 0 {
		return 0, nil
	}
	return fasthttp.ParseUint(raw)
}
