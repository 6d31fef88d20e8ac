package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"evalgo.org/nodelink/internal/auth"
	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/internal/node"
	"evalgo.org/nodelink/internal/services"
	"evalgo.org/nodelink/internal/token"
	"evalgo.org/nodelink/internal/validation"
	"evalgo.org/nodelink/models"
)

var validate = validation.New()

// issueWebsocketToken hands the acting user a session token for the server.
// @Summary Issue a WebSocket session token
// @Description Mint a capability token for the console WebSocket of a server, signed for the node hosting it
// @Tags Servers
// @Produce json
// @Param uuid path string true "Server UUID"
// @Success 200 {object} models.TokenResponse
// @Failure 401 {object} models.TokenResponse
// @Failure 403 {object} models.TokenResponse
// @Failure 404 {object} models.TokenResponse
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /api/user/servers/{uuid}/jwt [post]
func (s *Server) issueWebsocketToken(c echo.Context) error {
	user, ok := auth.GetUserID(c)
	if !ok {
		return tokenError(c, http.StatusUnauthorized, "unauthenticated", "authentication required")
	}
	server := c.Param("uuid")

	data, err := s.authority.WebsocketToken(c.Request().Context(), user, server)
	if err != nil {
		switch {
		case errors.Is(err, node.ErrNoAccess):
			return tokenError(c, http.StatusForbidden, "forbidden", "you do not have access to this server")
		case errors.Is(err, node.ErrUnknownServer), errors.Is(err, node.ErrUnknownNode):
			return tokenError(c, http.StatusNotFound, "server_not_found", "server not found")
		default:
			s.logger.Error("failed to issue session token", "server", server, "user", user, "error", err)
			return tokenError(c, http.StatusInternalServerError, "token_error", "failed to issue token")
		}
	}

	return c.JSON(http.StatusOK, models.TokenResponse{
		Success: true,
		Message: "token issued",
		Data:    data,
	})
}

func tokenError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, models.TokenResponse{
		Success:      false,
		Message:      message,
		Error:        true,
		ErrorMessage: &message,
		ErrorCode:    &code,
	})
}

// sendPower proxies one power signal to the node agent.
// @Summary Change server power state
// @Description Send start, stop, restart or kill to the node agent with a power-scoped token
// @Tags Servers
// @Accept json
// @Produce json
// @Param uuid path string true "Server UUID"
// @Param request body PowerRequest true "Power signal"
// @Success 200 {object} models.CallResult
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 502 {object} models.CallResult
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /api/user/servers/{uuid}/power [post]
func (s *Server) sendPower(c echo.Context) error {
	var req PowerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if result := validate.Validate(req); !result.Valid {
		return ValidationError("Invalid power request", result.FieldErrors())
	}
	signal := models.PowerSignal(req.Signal)

	set, err := s.scopedCall(c, signal.Permission(), func(iss *token.Issuer, server, user string) (string, error) {
		return iss.ForPower(server, user, signal)
	})
	if err != nil {
		return err
	}
	return respond(c, set.Servers.Power(c.Request().Context(), c.Param("uuid"), signal))
}

// listFiles proxies a directory listing.
// @Summary List server files
// @Description List a directory of the server with a file-scoped token
// @Tags Files
// @Produce json
// @Param uuid path string true "Server UUID"
// @Param directory query string false "Directory" default(/)
// @Success 200 {object} models.CallResult
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 502 {object} models.CallResult
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /api/user/servers/{uuid}/files [get]
func (s *Server) listFiles(c echo.Context) error {
	directory := c.QueryParam("directory")
	if directory == "" {
		directory = "/"
	}

	set, err := s.scopedCall(c, models.PermissionFileRead, func(iss *token.Issuer, server, user string) (string, error) {
		return iss.ForFile(server, user, directory, "list")
	})
	if err != nil {
		return err
	}
	return respond(c, set.Files.List(c.Request().Context(), c.Param("uuid"), directory))
}

// scopedCall authorizes the acting user for perm on the server in the path
// and returns callers carrying a freshly minted capability token.
func (s *Server) scopedCall(c echo.Context, perm string, mint func(*token.Issuer, string, string) (string, error)) (*services.Set, error) {
	user, ok := auth.GetUserID(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	server := c.Param("uuid")
	ctx := c.Request().Context()

	perms, err := s.authority.Permissions(ctx, user, server)
	if err != nil {
		if errors.Is(err, node.ErrNoAccess) {
			return nil, ForbiddenError("no access to server")
		}
		return nil, InternalError("Failed to resolve permissions", err.Error())
	}
	if !models.Allows(perms, perm) {
		return nil, ForbiddenError("missing permission " + perm)
	}

	iss, target, err := s.authority.IssuerForServer(ctx, server)
	if err != nil {
		if errors.Is(err, node.ErrUnknownServer) || errors.Is(err, node.ErrUnknownNode) {
			return nil, NotFoundError("Server", server)
		}
		return nil, InternalError("Failed to resolve node", err.Error())
	}

	tok, err := mint(iss, server, user)
	if err != nil {
		return nil, InternalError("Failed to issue token", err.Error())
	}
	return services.New(daemon.New(target, s.daemonOpts...).WithToken(tok)), nil
}

// nodeSystem returns the system information of a node agent.
// @Summary Node system information
// @Description Proxy the node agent system endpoint using the node secret
// @Tags Nodes
// @Produce json
// @Param node path string true "Node ID"
// @Param detailed query boolean false "Request the detailed (v2) payload"
// @Success 200 {object} models.CallResult
// @Failure 403 {object} APIError
// @Failure 404 {object} APIError
// @Failure 502 {object} models.CallResult
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /api/admin/nodes/{node}/system [get]
func (s *Server) nodeSystem(c echo.Context) error {
	set, err := s.adminCall(c)
	if err != nil {
		return err
	}
	detailed, _ := strconv.ParseBool(c.QueryParam("detailed"))
	return respond(c, set.System.Info(c.Request().Context(), detailed))
}

// nodeConfig returns the raw configuration file of a node agent.
// @Summary Node agent configuration
// @Description Proxy the node agent configuration; data holds the YAML document
// @Tags Nodes
// @Produce json
// @Param node path string true "Node ID"
// @Success 200 {object} models.CallResult
// @Failure 403 {object} APIError
// @Failure 404 {object} APIError
// @Failure 502 {object} models.CallResult
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /api/admin/nodes/{node}/config [get]
func (s *Server) nodeConfig(c echo.Context) error {
	set, err := s.adminCall(c)
	if err != nil {
		return err
	}
	return respond(c, set.Config.Get(c.Request().Context()))
}

// adminCall returns callers authenticated with the secret of the node in
// the path.
func (s *Server) adminCall(c echo.Context) (*services.Set, error) {
	id := c.Param("node")
	target, err := s.authority.Resolver().Target(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, node.ErrUnknownNode) {
			return nil, NotFoundError("Node", id)
		}
		return nil, InternalError("Failed to resolve node", err.Error())
	}
	return services.New(daemon.New(target, s.daemonOpts...)), nil
}

// respond writes a proxied call result. Daemon failures keep their status;
// transport failures become 502.
func respond(c echo.Context, result models.CallResult) error {
	status := http.StatusOK
	if !result.Success {
		status = result.Status
		if result.Kind == string(daemon.KindTransport) || status < 400 {
			status = http.StatusBadGateway
		}
	}
	return c.JSON(status, result)
}
