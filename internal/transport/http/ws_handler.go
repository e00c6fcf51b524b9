package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink-relay/internal/config"
	"github.com/vovakirdan/chatlink-relay/internal/core"
	"github.com/vovakirdan/chatlink-relay/internal/proto"
	"github.com/vovakirdan/chatlink-relay/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub     *core.Hub
	mapper  mapper
	origins []string
	limit   int64
	buffer  int
	rate    int
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. tokens may be nil.
func NewWSHandler(hub *core.Hub, tokens TokenValidator, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:     hub,
		mapper:  mapper{tokens: tokens, requireToken: cfg.RequireToken},
		origins: cfg.AllowedOrigins,
		limit:   cfg.MaxMessageBytes,
		buffer:  cfg.EventBuffer,
		rate:    cfg.RateLimitPerMinute,
		log:     logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.origins,
		InsecureSkipVerify: len(h.origins) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.limit > 0 {
		conn.SetReadLimit(h.limit)
	}

	client := core.NewClient(utils.NewID(), h.buffer)
	if err := h.hub.RegisterClient(client); err != nil {
		h.log.Error().Err(err).Msg("register client")
		return
	}
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.rate, time.Minute)
	limiter.startReset(ctx.Done())

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !limiter.allow() {
			h.log.Debug().Str("conn_id", client.ID).Msg("inbound rate limited")
			if writeErr := h.writeError(ctx, conn, &proto.Error{Code: errCodeRateLimited, Msg: "too many messages"}); writeErr != nil {
				return writeErr
			}
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(payload, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("malformed ws envelope")
			if writeErr := h.writeError(ctx, conn, &proto.Error{Code: errCodeInvalidMessage, Msg: "malformed json"}); writeErr != nil {
				return writeErr
			}
			continue
		}

		cmd, protoErr := h.mapper.inboundToCommand(inbound)
		if protoErr != nil {
			h.log.Debug().Str("conn_id", client.ID).Str("type", inbound.Type).Str("code", protoErr.Code).Msg("inbound rejected")
			if writeErr := h.writeError(ctx, conn, protoErr); writeErr != nil {
				return writeErr
			}
			continue
		}

		if err := client.Submit(ctx, cmd); err != nil {
			if errors.Is(err, core.ErrConnectionClosed) {
				return nil
			}
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, perr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: perr})
}
