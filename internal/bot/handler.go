// Package bot turns chat commands into control operations and formats the
// replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hazz-dev/uptimebot/internal/control"
	"github.com/hazz-dev/uptimebot/internal/storage"
)

const (
	startText = "🤖 Uptime Bot Active\n/add name url"

	helpText = "/add name url - monitor a service\n" +
		"/status - your services\n" +
		"/remove name - stop monitoring"

	ownerHelpText = "\n\nOwner:\n" +
		"/list - every service\n" +
		"/ban user_id, /unban user_id\n" +
		"/pause, /resume"
)

// Handler executes one command on behalf of a user.
type Handler struct {
	svc    *control.Service
	logger *slog.Logger
}

// NewHandler creates a Handler. Pass nil logger to use the default logger.
func NewHandler(svc *control.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Handle runs the command in text for userID. ok is false when the user
// gets no reply: banned users, owner commands from non-owners, unknown
// commands and plain text.
func (h *Handler) Handle(ctx context.Context, userID int64, text string) (reply string, ok bool) {
	cmd, args := parseCommand(text)
	if cmd == "" {
		return "", false
	}

	var err error
	switch cmd {
	case "start":
		reply, err = startText, h.svc.Authorize(ctx, userID)
	case "help":
		reply, err = h.help(userID), h.svc.Authorize(ctx, userID)
	case "add":
		reply, err = h.add(ctx, userID, args)
	case "status":
		reply, err = h.status(ctx, userID)
	case "list":
		reply, err = h.listAll(ctx, userID)
	case "remove":
		reply, err = h.remove(ctx, userID, args)
	case "ban":
		reply, err = h.ban(ctx, userID, args, true)
	case "unban":
		reply, err = h.ban(ctx, userID, args, false)
	case "pause":
		reply, err = "⏸ Monitoring paused", h.svc.Pause(ctx, userID)
	case "resume":
		reply, err = "▶️ Monitoring resumed", h.svc.Resume(ctx, userID)
	default:
		return "", false
	}

	switch {
	case err == nil:
		return reply, true
	case errors.Is(err, control.ErrBanned), errors.Is(err, control.ErrForbidden):
		return "", false
	case errors.Is(err, control.ErrInvalidArgument):
		return "❌ " + err.Error(), true
	default:
		h.logger.Error("handling command", "command", cmd, "user", userID, "error", err)
		return "⚠️ Something went wrong, try again later", true
	}
}

func (h *Handler) help(userID int64) string {
	if h.svc.IsOwner(userID) {
		return helpText + ownerHelpText
	}
	return helpText
}

func (h *Handler) add(ctx context.Context, userID int64, args []string) (string, error) {
	if err := h.svc.Authorize(ctx, userID); err != nil {
		return "", err
	}
	if len(args) < 2 {
		return "Usage: /add name url", nil
	}
	if _, err := h.svc.Add(ctx, userID, args[0], args[1]); err != nil {
		return "", err
	}
	return "✅ Service added", nil
}

func (h *Handler) status(ctx context.Context, userID int64) (string, error) {
	services, err := h.svc.Status(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(services) == 0 {
		return "No services", nil
	}
	var b strings.Builder
	for i, s := range services {
		fmt.Fprintf(&b, "%d. %s %s\n%s\n\n", i+1, healthIcon(s.Health), s.Name, s.Endpoint)
	}
	return b.String(), nil
}

func (h *Handler) listAll(ctx context.Context, userID int64) (string, error) {
	services, err := h.svc.ListAll(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(services) == 0 {
		return "Empty", nil
	}
	var b strings.Builder
	for _, s := range services {
		fmt.Fprintf(&b, "👤 %d\n%s\n%s\n\n", s.Owner, s.Name, s.Endpoint)
	}
	return b.String(), nil
}

func (h *Handler) remove(ctx context.Context, userID int64, args []string) (string, error) {
	if err := h.svc.Authorize(ctx, userID); err != nil {
		return "", err
	}
	if len(args) < 1 {
		return "Usage: /remove name", nil
	}
	if _, err := h.svc.Remove(ctx, userID, args[0]); err != nil {
		return "", err
	}
	return "🗑 Removed", nil
}

func (h *Handler) ban(ctx context.Context, userID int64, args []string, ban bool) (string, error) {
	usage, done := "Usage: /unban user_id", "✅ User unbanned"
	if ban {
		usage, done = "Usage: /ban user_id", "🚫 User banned"
	}
	// Non-owners learn nothing, not even the usage line.
	if err := h.svc.Authorize(ctx, userID); err != nil {
		return "", err
	}
	if !h.svc.IsOwner(userID) {
		return "", control.ErrForbidden
	}
	if len(args) < 1 {
		return usage, nil
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return usage, nil
	}

	if ban {
		err = h.svc.Ban(ctx, userID, target)
	} else {
		err = h.svc.Unban(ctx, userID, target)
	}
	if err != nil {
		return "", err
	}
	return done, nil
}

// parseCommand splits "/cmd@bot a b" into "cmd" and its arguments. Text
// that is not a command yields an empty cmd.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func healthIcon(h storage.Health) string {
	switch h {
	case storage.HealthUp:
		return "🟢"
	case storage.HealthDown:
		return "🔴"
	default:
		return "⚪"
	}
}
