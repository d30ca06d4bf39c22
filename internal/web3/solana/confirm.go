package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	xerrors "KOL-Agent/internal/errors"
)

var commitmentLevels = map[string]int{"processed": 0, "confirmed": 1, "finalized": 2}

func commitmentRank(level string) int {
	if r, ok := commitmentLevels[level]; ok {
		return r
	}
	return -1
}

type signatureStatus struct {
	Slot               uint64          `json:"slot"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

func txFailed(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// txFailure reports a transaction the cluster executed and rejected.
func txFailure(signature string, raw json.RawMessage) error {
	return xerrors.New(xerrors.CodeUpstreamFailure, fmt.Sprintf("transaction %s failed: %s", signature, raw),
		xerrors.WithMetadata("signature", signature),
		xerrors.WithMetadata("tx_error", string(raw)))
}

func failedOnChain(err error) bool {
	return xerrors.MetadataOf(err)["tx_error"] != ""
}

// Confirm blocks until signature reaches the client's commitment level. It
// uses signatureSubscribe when a websocket endpoint is configured and falls
// back to polling getSignatureStatuses.
func (c *Client) Confirm(ctx context.Context, signature string) error {
	if c.wsURL != "" {
		err := c.confirmWebsocket(ctx, signature)
		if err == nil || ctx.Err() != nil || xerrors.CodeOf(err) == xerrors.CodeUpstreamFailure {
			return err
		}
		c.log.Warn("websocket 确认失败，改为轮询", slog.String("signature", signature), slog.Any("error", err))
	}
	return c.confirmPolling(ctx, signature)
}

// status returns whether signature has reached the commitment level.
func (c *Client) status(ctx context.Context, signature string) (bool, error) {
	var res contextValue[[]*signatureStatus]
	if err := c.call(ctx, &res, "getSignatureStatuses", []string{signature}, map[string]bool{"searchTransactionHistory": false}); err != nil {
		return false, err
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return false, nil
	}
	st := res.Value[0]
	if txFailed(st.Err) {
		return false, txFailure(signature, st.Err)
	}
	return commitmentRank(st.ConfirmationStatus) >= commitmentRank(c.commitment), nil
}

func (c *Client) confirmPolling(ctx context.Context, signature string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		done, err := c.status(ctx, signature)
		if err != nil && xerrors.CodeOf(err) != xerrors.CodeRateLimited {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type wsMessage struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Params struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Value struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (c *Client) confirmWebsocket(ctx context.Context, signature string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "signatureSubscribe",
		"params":  []any{signature, map[string]string{"commitment": c.commitment}},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("websocket subscribe: %w", err)
	}

	subscribed := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		switch {
		case msg.ID != nil && *msg.ID == 1:
			if msg.Error != nil {
				return fmt.Errorf("signatureSubscribe: %d %s", msg.Error.Code, msg.Error.Message)
			}
			subscribed = true
			// The notification is not sent for signatures confirmed before the
			// subscription was registered.
			done, err := c.status(ctx, signature)
			if err != nil || done {
				return err
			}
		case msg.Method == "signatureNotification" && subscribed:
			if txFailed(msg.Params.Result.Value.Err) {
				return txFailure(signature, msg.Params.Result.Value.Err)
			}
			return nil
		}
	}
}
