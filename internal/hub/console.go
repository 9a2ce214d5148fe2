package hub

import (
	"context"
	"strings"

	"github.com/google/uuid"

	log "log/slog"

	"voxwork/internal/emit"
	"voxwork/pkg/dispatch"
)

const (
	CmdList = "list"
	CmdSay  = "say"

	// SpeechWorker receives the requests built by "say".
	SpeechWorker = "tts"
)

// Console turns operator lines into worker commands:
//
//	<worker> <command>   forward command to one worker
//	all <command>        forward to every worker
//	say <text>           speak text under a fresh request id
//	list                 print the connected workers
type Console struct {
	Hub   *Hub
	Out   *emit.Emitter
	NewID func() string
}

func NewConsole(h *Hub, out *emit.Emitter) *Console {
	return &Console{
		Hub:   h,
		Out:   out,
		NewID: func() string { return uuid.NewString() },
	}
}

func (c *Console) Handle(_ context.Context, cmd dispatch.Command) {
	target, rest, _ := strings.Cut(strings.TrimSpace(cmd.Text), " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch {
	case target == CmdList && rest == "":
		c.Out.Emit(CmdList, c.Hub.Workers()...)
		return
	case target == CmdSay && rest != "":
		id := c.NewID()
		err = c.Hub.Send(SpeechWorker, id+" "+rest)
		if err == nil {
			log.Info("Queued speech", "id", id)
		}
	case target == "all" && rest != "":
		err = c.Hub.Broadcast(rest)
	case target != "" && rest != "":
		err = c.Hub.Send(target, rest)
	default:
		c.Out.Emit(emit.Ignore, cmd.Text)
		return
	}

	if err != nil {
		log.Warn("Failed to forward command", "line", cmd.Text, "err", err)
		c.Out.Emit(emit.Error, strings.Join(strings.Fields(err.Error()), " "))
	}
}
