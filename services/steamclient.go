package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/paralin/go-steam"
	"github.com/paralin/go-steam/protocol"
	"github.com/paralin/go-steam/protocol/protobuf"
	"github.com/paralin/go-steam/protocol/steamlang"
	"github.com/paralin/go-steam/steamid"
	"google.golang.org/protobuf/encoding/protowire"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/utils"
)

// personaFlagRichPresence is newer than the enum shipped with go-steam.
const personaFlagRichPresence steamlang.EClientPersonaStateFlag = 4096

const friendInfoFlags = steamlang.EClientPersonaStateFlag_Status |
	steamlang.EClientPersonaStateFlag_PlayerName |
	steamlang.EClientPersonaStateFlag_Presence |
	steamlang.EClientPersonaStateFlag_GameExtraInfo |
	personaFlagRichPresence

// CMsgClientPersonaState.Friend.rich_presence is not in go-steam's generated
// struct, so it survives decoding only as an unknown field.
const (
	friendRichPresenceField protowire.Number = 71
	richPresenceKeyField    protowire.Number = 1
	richPresenceValueField  protowire.Number = 2
)

// drainLinger is how long teardown keeps reading events after Disconnect
// returns, so go-steam's read loop can finish emitting its last error.
const drainLinger = 250 * time.Millisecond

// steamConn drives one go-steam client. Events are consumed on a single
// goroutine; persona packets arrive on the client's read loop.
type steamConn struct {
	client *steam.Client
	creds  Credentials
	events ConnEvents
	logger *utils.Logger

	mu     sync.Mutex
	closed bool

	cancel context.CancelFunc
	once   sync.Once
}

// NewSteamDialer returns a Dialer backed by the Steam client network.
func NewSteamDialer(logger *utils.Logger) Dialer {
	return func(creds Credentials, events ConnEvents) (Conn, error) {
		if events == nil {
			return nil, errors.New("steam: nil event sink")
		}
		ctx, cancel := context.WithCancel(context.Background())
		c := &steamConn{
			client: steam.NewClient(),
			creds:  creds,
			events: events,
			logger: logger.With("component", "steam", "login", creds.Login),
			cancel: cancel,
		}
		c.client.RegisterPacketHandler(c)
		go c.run(ctx)
		return c, nil
	}
}

func (c *steamConn) run(ctx context.Context) {
	c.client.Connect()
	if ctx.Err() != nil {
		// closed while dialing
		c.disconnect()
		return
	}

	events := c.client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if c.isClosed() {
				continue
			}
			c.handleEvent(event)
		}
	}
}

func (c *steamConn) handleEvent(event interface{}) {
	switch e := event.(type) {
	case *steam.ConnectedEvent:
		c.logger.Debug("Connected to Steam, logging in")
		c.client.Auth.LogOn(&steam.LogOnDetails{
			Username:      c.creds.Login,
			Password:      c.creds.Password,
			TwoFactorCode: c.creds.TwoFactorCode,
		})

	case *steam.LoggedOnEvent:
		c.client.Social.SetPersonaState(steamlang.EPersonaState_Online)
		if !c.isClosed() {
			c.events.LoggedOn()
		}
		if err := c.PollFriends(); err != nil {
			c.logger.Warn("Initial friend poll failed", "error", err)
		}

	case *steam.LogOnFailedEvent:
		c.fail(fmt.Errorf("steam logon failed: %v", e.Result))

	case *steam.PersonaStateEvent:
		// rich presence comes through HandlePacket; this keeps persona state fresh for
		// friends whose update carries no rich presence at all
		c.emitFriend(FriendUpdate{
			SteamID64:    strconv.FormatUint(uint64(e.FriendId), 10),
			PersonaState: int(e.State),
			AppID:        int(e.GameAppId),
			InGame:       e.GameAppId != 0 || e.GameId != 0,
		})

	case *steam.DisconnectedEvent:
		c.fail(errors.New("disconnected from steam"))

	case error:
		c.fail(e)
	}
}

// HandlePacket implements steam.PacketHandler and extracts rich presence
// pairs, which go-steam's persona event does not carry.
func (c *steamConn) HandlePacket(packet *protocol.Packet) {
	if packet.EMsg != steamlang.EMsg_ClientPersonaState {
		return
	}
	msg := new(protobuf.CMsgClientPersonaState)
	packet.ReadProtoMsg(msg)

	for _, friend := range msg.GetFriends() {
		pairs := decodeRichPresence(friend.XXX_unrecognized)
		if len(pairs) == 0 {
			continue
		}
		appID := friend.GetGamePlayedAppId()
		c.emitFriend(FriendUpdate{
			SteamID64:    strconv.FormatUint(friend.GetFriendid(), 10),
			PersonaState: int(friend.GetPersonaState()),
			AppID:        int(appID),
			InGame:       appID != 0 || friend.GetGameid() != 0,
			RichPresence: pairs,
		})
	}
}

// decodeRichPresence walks a friend's unknown fields and returns its
// rich_presence entries in wire order. Malformed input ends the walk.
func decodeRichPresence(b []byte) []models.KV {
	var pairs []models.KV
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return pairs
		}
		b = b[n:]

		if num == friendRichPresenceField && typ == protowire.BytesType {
			entry, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return pairs
			}
			if kv, ok := decodeRichPresenceKV(entry); ok {
				pairs = append(pairs, kv)
			}
			b = b[m:]
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return pairs
		}
		b = b[m:]
	}
	return pairs
}

func decodeRichPresenceKV(b []byte) (models.KV, bool) {
	var kv models.KV
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return kv, false
		}
		b = b[n:]

		if typ == protowire.BytesType && (num == richPresenceKeyField || num == richPresenceValueField) {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return kv, false
			}
			if num == richPresenceKeyField {
				kv.Key = string(v)
			} else {
				kv.Value = string(v)
			}
			b = b[m:]
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return kv, false
		}
		b = b[m:]
	}
	return kv, kv.Key != ""
}

// PollFriends requests persona and rich presence for every friend.
func (c *steamConn) PollFriends() error {
	if c.isClosed() {
		return errors.New("steam: connection closed")
	}
	friends := c.client.Social.Friends.GetCopy()
	if len(friends) == 0 {
		return nil
	}
	ids := make([]steamid.SteamId, 0, len(friends))
	for id := range friends {
		ids = append(ids, id)
	}
	c.client.Social.RequestFriendListInfo(ids, friendInfoFlags)
	return nil
}

// Close logs off. No events are delivered after it returns.
func (c *steamConn) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		c.disconnect()
	})
}

// disconnect calls client.Disconnect while something reads the event
// channel: Disconnect emits under the client lock, and a full buffer with no
// reader would block it forever.
func (c *steamConn) disconnect() {
	stop := make(chan struct{})
	go drainEvents(c.client.Events(), stop, drainLinger)
	c.client.Disconnect()
	close(stop)
}

// drainEvents discards events until stop closes, then until the channel has
// been quiet for linger.
func drainEvents(events <-chan interface{}, stop <-chan struct{}, linger time.Duration) {
	for draining := true; draining; {
		select {
		case <-events:
		case <-stop:
			draining = false
		}
	}

	timer := time.NewTimer(linger)
	defer timer.Stop()
	for {
		select {
		case <-events:
			timer.Reset(linger)
		case <-timer.C:
			return
		}
	}
}

func (c *steamConn) emitFriend(update FriendUpdate) {
	if c.isClosed() {
		return
	}
	c.events.FriendPresence(update)
}

func (c *steamConn) fail(err error) {
	if c.isClosed() {
		return
	}
	c.events.Failed(err)
}

func (c *steamConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
