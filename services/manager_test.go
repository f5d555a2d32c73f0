package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/utils"
)

type fakeConn struct {
	mu     sync.Mutex
	polls  int
	closed bool
}

func (c *fakeConn) PollFriends() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) pollCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

type fakeNetwork struct {
	mu     sync.Mutex
	conns  map[string]*fakeConn
	events map[string]ConnEvents
	creds  map[string]Credentials
	err    error
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		conns:  make(map[string]*fakeConn),
		events: make(map[string]ConnEvents),
		creds:  make(map[string]Credentials),
	}
}

func (n *fakeNetwork) dial(creds Credentials, events ConnEvents) (Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	conn := &fakeConn{}
	n.conns[creds.Login] = conn
	n.events[creds.Login] = events
	n.creds[creds.Login] = creds
	return conn, nil
}

func (n *fakeNetwork) sink(login string) ConnEvents {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[login]
}

func (n *fakeNetwork) conn(login string) *fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[login]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, net *fakeNetwork, mirror *StatusMirror) (*Manager, *testClock) {
	t.Helper()
	clock := &testClock{now: t0}
	m := NewManager(utils.NewNopLogger(), ManagerOptions{
		Dialer:       net.dial,
		Mirror:       mirror,
		PollInterval: time.Hour,
		Now:          clock.Now,
	})
	t.Cleanup(m.Shutdown)
	return m, clock
}

func connectReq(userID, login string, isDefault bool) models.ConnectRequest {
	return models.ConnectRequest{UserID: userID, Login: login, Password: "pw", IsDefault: isDefault}
}

func TestConnectMissingFields(t *testing.T) {
	m, _ := newTestManager(t, newFakeNetwork(), nil)
	_, err := m.Connect("b1", models.ConnectRequest{UserID: "u1", Login: "l"})
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = m.Connect("b1", models.ConnectRequest{Login: "l", Password: "p"})
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, 0, m.Count())
}

func TestConnectLifecycle(t *testing.T) {
	net := newFakeNetwork()
	m, _ := newTestManager(t, net, nil)

	st, err := m.Connect("b1", connectReq("u1", "op1", true))
	require.NoError(t, err)
	assert.Equal(t, models.BridgeConnecting, st.Status)
	assert.True(t, st.IsDefault)
	assert.False(t, m.AnyOnline())

	net.sink("op1").LoggedOn()
	st, err = m.Status("b1")
	require.NoError(t, err)
	assert.Equal(t, models.BridgeOnline, st.Status)
	assert.True(t, st.LoggedOn)
	assert.True(t, m.AnyOnline())

	net.sink("op1").Failed(errors.New("disconnected from steam"))
	st, _ = m.Status("b1")
	assert.Equal(t, models.BridgeError, st.Status)
	assert.Equal(t, "disconnected from steam", st.LastError)
	assert.False(t, m.AnyOnline())
}

func TestConnectWithSharedSecret(t *testing.T) {
	net := newFakeNetwork()
	m, _ := newTestManager(t, net, nil)

	req := connectReq("u1", "op1", false)
	req.SharedSecret = testSharedSecret
	_, err := m.Connect("b1", req)
	require.NoError(t, err)

	want, _ := GenerateAuthCode(testSharedSecret, t0)
	assert.Equal(t, want, net.creds["op1"].TwoFactorCode)

	req.SharedSecret = "%%%"
	_, err = m.Connect("b2", req)
	assert.ErrorIs(t, err, ErrInvalidSharedSecret)
}

func TestConnectDialFailureSurfacesAsError(t *testing.T) {
	net := newFakeNetwork()
	net.err = errors.New("no route")
	m, _ := newTestManager(t, net, nil)

	st, err := m.Connect("b1", connectReq("u1", "op1", false))
	require.NoError(t, err)
	assert.Equal(t, models.BridgeError, st.Status)
	assert.Contains(t, st.LastError, "no route")
}

func TestReconnectTearsDownPrevious(t *testing.T) {
	net := newFakeNetwork()
	m, _ := newTestManager(t, net, nil)

	_, err := m.Connect("b1", connectReq("u1", "op1", false))
	require.NoError(t, err)
	oldSink := net.sink("op1")
	oldConn := net.conn("op1")

	_, err = m.Connect("b1", connectReq("u1", "op1-new", false))
	require.NoError(t, err)
	assert.True(t, oldConn.isClosed())
	assert.Equal(t, 1, m.Count())

	// late events from the torn-down session are ignored
	oldSink.LoggedOn()
	oldSink.FriendPresence(FriendUpdate{SteamID64: player})
	st, _ := m.Status("b1")
	assert.Equal(t, models.BridgeConnecting, st.Status)
	assert.Equal(t, 0, st.Friends)
}

func TestDisconnect(t *testing.T) {
	net := newFakeNetwork()
	m, _ := newTestManager(t, net, nil)

	_, err := m.Connect("b1", connectReq("u1", "op1", true))
	require.NoError(t, err)
	assert.Equal(t, "b1", m.DefaultBridge("u1"))

	assert.True(t, m.Disconnect("b1", "u1"))
	assert.True(t, net.conn("op1").isClosed())
	assert.Equal(t, "", m.DefaultBridge("u1"))
	_, err = m.Status("b1")
	assert.ErrorIs(t, err, ErrBridgeNotFound)

	assert.False(t, m.Disconnect("b1", "u1"))
}

func TestResolve(t *testing.T) {
	net := newFakeNetwork()
	m, clock := newTestManager(t, net, nil)

	_, _ = m.Connect("first", connectReq("u1", "a", false))
	clock.Advance(time.Second)
	_, _ = m.Connect("second", connectReq("u1", "b", false))
	clock.Advance(time.Second)
	_, _ = m.Connect("other", connectReq("u2", "c", false))

	assert.Equal(t, "other", m.Resolve("u1", "other").ID, "exact bridge id wins")
	assert.Equal(t, "first", m.Resolve("u1", "").ID, "oldest owned session")
	assert.Equal(t, "first", m.Resolve("u1", "missing").ID)
	assert.Nil(t, m.Resolve("u3", ""))
	assert.Equal(t, "first", m.Resolve("", "").ID, "no selector falls back to oldest session")
	assert.Nil(t, m.Resolve("", "missing"))

	_, _ = m.Connect("second", connectReq("u1", "b2", true))
	assert.Equal(t, "second", m.Resolve("u1", "").ID, "default bridge beats oldest")

	m.Disconnect("second", "")
	assert.Equal(t, "first", m.Resolve("u1", "").ID)
}

func TestListByUser(t *testing.T) {
	net := newFakeNetwork()
	m, clock := newTestManager(t, net, nil)

	_, _ = m.Connect("b2", connectReq("u1", "a", false))
	clock.Advance(time.Second)
	_, _ = m.Connect("b1", connectReq("u1", "b", true))
	_, _ = m.Connect("b3", connectReq("u2", "c", false))

	list := m.ListByUser("u1")
	require.Len(t, list, 2)
	assert.Equal(t, "b2", list[0].BridgeID)
	assert.Equal(t, "b1", list[1].BridgeID)
	assert.True(t, list[1].IsDefault)
	assert.Empty(t, m.ListByUser("nobody"))
}

func TestFriendPresencePreservesRichPresence(t *testing.T) {
	net := newFakeNetwork()
	m, clock := newTestManager(t, net, nil)
	_, _ = m.Connect("b1", connectReq("u1", "op1", false))
	sink := net.sink("op1")

	sink.FriendPresence(FriendUpdate{
		SteamID64:    player,
		PersonaState: 1,
		AppID:        570,
		InGame:       true,
		RichPresence: []models.KV{{Key: "status", Value: "Playing Ranked"}, {Key: "lobby", Value: "lobby_state: RUN"}},
	})
	clock.Advance(10 * time.Second)
	sink.FriendPresence(FriendUpdate{SteamID64: player, PersonaState: 3})

	b := m.Resolve("u1", "")
	sample, derived, ok := b.Presence(player)
	require.True(t, ok)
	assert.Equal(t, 3, sample.PersonaState)
	assert.Nil(t, sample.AppID)
	assert.Equal(t, t0.Add(10*time.Second), sample.LastUpdatedAt)
	assert.Len(t, sample.RichPresenceRaw, 2)
	assert.Equal(t, "Playing Ranked", sample.RichPresence["status"])
	assert.True(t, derived.InMatch)

	_, _, ok = b.Presence("unknown")
	assert.False(t, ok)

	st, _ := m.Status("b1")
	require.NotNil(t, st.LastSeenAt)
	assert.Equal(t, t0.Add(10*time.Second), *st.LastSeenAt)
	assert.Equal(t, 1, st.Friends)
	assert.Equal(t, 1, st.TrackedMatches)
}

func TestKeyCounts(t *testing.T) {
	net := newFakeNetwork()
	m, _ := newTestManager(t, net, nil)
	_, _ = m.Connect("b1", connectReq("u1", "op1", false))
	sink := net.sink("op1")
	sink.FriendPresence(FriendUpdate{SteamID64: "1", RichPresence: []models.KV{{Key: "status", Value: "x"}, {Key: "Status", Value: "y"}}})
	sink.FriendPresence(FriendUpdate{SteamID64: "2", RichPresence: []models.KV{{Key: "status", Value: "x"}, {Key: "param0", Value: "y"}}})

	counts := map[string]int{}
	n := m.Resolve("u1", "").KeyCounts(counts)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]int{"status": 2, "param0": 1}, counts)
	assert.Equal(t, []string{"1", "2"}, m.Resolve("u1", "").FriendIDs())
}

func TestPollTickOnlyWhileOnline(t *testing.T) {
	net := newFakeNetwork()
	m, clock := newTestManager(t, net, nil)
	_, _ = m.Connect("b1", connectReq("u1", "op1", false))
	b := m.Resolve("", "b1")

	b.pollTick(context.Background())
	assert.Equal(t, 0, net.conn("op1").pollCount())

	net.sink("op1").LoggedOn()
	b.pollTick(context.Background())
	assert.Equal(t, 1, net.conn("op1").pollCount())

	// the tick also sweeps expired match clocks
	net.sink("op1").FriendPresence(FriendUpdate{SteamID64: player, RichPresence: []models.KV{{Key: "lobby", Value: "lobby_state: RUN"}}})
	b.Presence(player)
	net.sink("op1").FriendPresence(FriendUpdate{SteamID64: player, RichPresence: []models.KV{{Key: "status", Value: "#DOTA_RP_IDLE"}}})
	b.Presence(player)
	st, _ := m.Status("b1")
	assert.Equal(t, 1, st.TrackedMatches)

	clock.Advance(DefaultMatchGrace)
	b.pollTick(context.Background())
	st, _ = m.Status("b1")
	assert.Equal(t, 0, st.TrackedMatches)
}

func TestStatusMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mirror := NewStatusMirror(client, time.Minute)

	net := newFakeNetwork()
	m, _ := newTestManager(t, net, mirror)
	_, err := m.Connect("b1", connectReq("u1", "op1", false))
	require.NoError(t, err)

	assert.True(t, mr.Exists("bridge:status:b1"))
	assert.Equal(t, time.Minute, mr.TTL("bridge:status:b1"))
	ok, _ := mr.SIsMember("bridges_online", "b1")
	assert.False(t, ok)

	net.sink("op1").LoggedOn()
	ok, _ = mr.SIsMember("bridges_online", "b1")
	assert.True(t, ok)
	raw, err := mr.Get("bridge:status:b1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"status":"online"`)

	m.Disconnect("b1", "")
	assert.False(t, mr.Exists("bridge:status:b1"))
	ok, _ = mr.SIsMember("bridges_online", "b1")
	assert.False(t, ok)
}

func TestStatusMirrorEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mirror := NewStatusMirror(client, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := client.Subscribe(ctx, BridgeEventsChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, mirror.Publish(ctx, models.BridgeStatus{BridgeID: "b1", Status: models.BridgeOnline, LoggedOn: true}))
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"bridge_id":"b1"`)
	assert.Contains(t, msg.Payload, `"status":"online"`)

	require.NoError(t, mirror.Remove(ctx, "b1"))
	msg, err = sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"status":"disconnected"`)
}

func TestNilStatusMirror(t *testing.T) {
	var mirror *StatusMirror
	assert.Nil(t, NewStatusMirror(nil, time.Minute))
	assert.NoError(t, mirror.Publish(context.Background(), models.BridgeStatus{BridgeID: "b"}))
	assert.NoError(t, mirror.Remove(context.Background(), "b"))
}
