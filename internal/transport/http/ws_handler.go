package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"classpulse/internal/app"
	"classpulse/internal/domain"
	"classpulse/internal/flow"
	"github.com/gorilla/websocket"
)

// WSHandler is the chat gateway: one WebSocket connection per chat, JSON
// envelopes in both directions. It owns the per-connection conversation
// machine and checks the admin guard before dispatching teacher operations.
type WSHandler struct {
	answers  *app.AnswerService
	stats    *app.StatsService
	admin    *app.AdminService
	upgrader websocket.Upgrader
}

func NewWSHandler(answers *app.AnswerService, stats *app.StatsService, admin *app.AdminService) *WSHandler {
	return &WSHandler{
		answers: answers,
		stats:   stats,
		admin:   admin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type promptPayload struct {
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices,omitempty"`
}

type menuPayload struct {
	Role    domain.Role `json:"role"`
	Actions []string    `json:"actions"`
}

type answerPayload struct {
	OptionID int64 `json:"optionId"`
}

type groupPayload struct {
	GroupID int64 `json:"groupId"`
}

type textPayload struct {
	Text string `json:"text"`
}

// ServeWS upgrades the request and runs the chat loop for one connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chatId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid chatId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	machine := flow.New()
	send <- h.menu(r.Context(), chatID)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r.Context(), chatID, machine, inbound, send)
	}

	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, chatID int64, machine *flow.Machine, inbound inboundMessage, send chan<- outboundMessage[any]) {
	switch inbound.Type {
	case "menu":
		machine.Reset()
		send <- h.menu(ctx, chatID)

	case "poll":
		poll, err := h.answers.ActivePoll(ctx, chatID)
		if err != nil {
			send <- errMsg(err)
			return
		}
		send <- outboundMessage[any]{Type: "poll", Payload: poll}

	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg(errInvalidPayload)
			return
		}
		outcome, err := h.answers.Submit(ctx, chatID, payload.OptionID)
		if err != nil {
			send <- errMsg(err)
			return
		}
		send <- outboundMessage[any]{Type: "answerResult", Payload: outcome}

	case "stats":
		stats, err := h.stats.UserStats(ctx, chatID)
		if err != nil {
			send <- errMsg(err)
			return
		}
		send <- outboundMessage[any]{Type: "stats", Payload: stats}

	case "cohortStats":
		if err := h.admin.IsAdmin(ctx, chatID); err != nil {
			send <- errMsg(err)
			return
		}
		stats, err := h.stats.CohortStats(ctx)
		if err != nil {
			send <- errMsg(err)
			return
		}
		send <- outboundMessage[any]{Type: "cohortStats", Payload: stats}

	case "groups":
		if err := h.admin.IsAdmin(ctx, chatID); err != nil {
			send <- errMsg(err)
			return
		}
		groups, err := h.admin.Groups(ctx)
		if err != nil {
			send <- errMsg(err)
			return
		}
		send <- outboundMessage[any]{Type: "groups", Payload: groups}

	case "members":
		var payload groupPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg(errInvalidPayload)
			return
		}
		if err := h.admin.IsAdmin(ctx, chatID); err != nil {
			send <- errMsg(err)
			return
		}
		members, err := h.admin.GroupMembers(ctx, payload.GroupID)
		if err != nil {
			send <- errMsg(err)
			return
		}
		send <- outboundMessage[any]{Type: "members", Payload: members}

	case "createGroup":
		if err := h.admin.IsAdmin(ctx, chatID); err != nil {
			send <- errMsg(err)
			return
		}
		send <- promptMsg(machine.BeginGroupCreation())

	case "enroll":
		var payload groupPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg(errInvalidPayload)
			return
		}
		if err := h.admin.IsAdmin(ctx, chatID); err != nil {
			send <- errMsg(err)
			return
		}
		send <- promptMsg(machine.BeginEnrollment(payload.GroupID))

	case "createPoll":
		var payload groupPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg(errInvalidPayload)
			return
		}
		if err := h.admin.IsAdmin(ctx, chatID); err != nil {
			send <- errMsg(err)
			return
		}
		send <- promptMsg(machine.BeginPollCreation(payload.GroupID))

	case "message":
		var payload textPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg(errInvalidPayload)
			return
		}
		reply, cmd, err := machine.Handle(payload.Text)
		if err != nil {
			send <- errMsg(err)
			return
		}
		if cmd != nil {
			if err := h.execute(ctx, chatID, cmd); err != nil {
				send <- errMsg(err)
				return
			}
		}
		send <- promptMsg(reply)

	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}

// execute applies a completed conversation command through the services.
// All emitted commands are teacher-side, so the guard ran at dialog start;
// it is re-checked here in case the role changed mid-conversation.
func (h *WSHandler) execute(ctx context.Context, chatID int64, cmd flow.Command) error {
	if err := h.admin.IsAdmin(ctx, chatID); err != nil {
		return err
	}
	switch c := cmd.(type) {
	case flow.CreateGroup:
		_, err := h.admin.CreateGroup(ctx, chatID, c.Name)
		return err
	case flow.EnrollStudent:
		_, err := h.admin.EnrollStudent(ctx, c.GroupID, c.FullName, c.ChatID)
		return err
	case flow.CreatePoll:
		_, err := h.admin.CreatePoll(ctx, c.GroupID, c.Question, c.Options, c.CorrectIndex, c.Duration)
		return err
	}
	return nil
}

func (h *WSHandler) menu(ctx context.Context, chatID int64) outboundMessage[any] {
	actions := []string{"poll", "stats"}
	role := domain.RoleUser
	if err := h.admin.IsAdmin(ctx, chatID); err == nil {
		role = domain.RoleAdmin
		actions = []string{"groups", "members", "createGroup", "enroll", "createPoll", "cohortStats", "stats"}
	}
	return outboundMessage[any]{Type: "menu", Payload: menuPayload{Role: role, Actions: actions}}
}

var errInvalidPayload = errors.New("invalid payload")

func errMsg(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

func promptMsg(reply flow.Reply) outboundMessage[any] {
	return outboundMessage[any]{Type: "prompt", Payload: promptPayload{Prompt: reply.Prompt, Choices: reply.Choices}}
}
