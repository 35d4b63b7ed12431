package adapters_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ring_and_rip/adapters"
	"ring_and_rip/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPeer - a loopback fake SIP peer. Every received datagram is pushed
// onto the returned channel; handle decides the reply (empty means stay
// silent). The peer socket is torn down with the test.
func startPeer(t *testing.T, handle func(msg string) string) (*net.UDPConn, <-chan string) {
	t.Helper()

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	msgs := make(chan string, 16)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := peer.ReadFromUDP(buf)
			if err != nil {
				return
			}

			msg := string(buf[:n])
			msgs <- msg

			if reply := handle(msg); reply != "" {
				peer.WriteToUDP([]byte(reply), addr)
			}
		}
	}()

	return peer, msgs
}

func recvMsg(t *testing.T, msgs <-chan string) string {
	t.Helper()

	select {
	case msg := <-msgs:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a datagram")
		return ""
	}
}

func peerConfig(peer *net.UDPConn) domain.Config {
	return domain.Config{
		URIFrom: "sip:alice@127.0.0.1",
		URITo:   "sip:100@" + peer.LocalAddr().String(),
		URIVia:  "127.0.0.1",
		Logger:  quietLogger(),
	}
}

// the far end rings and never answers, we hang up after the ring duration
func TestCallRingsThenCancels(t *testing.T) {
	peer, msgs := startPeer(t, func(msg string) string {
		switch {
		case strings.HasPrefix(msg, "INVITE"):
			return "SIP/2.0 100 Trying\r\n\r\n"
		case strings.HasPrefix(msg, "CANCEL"):
			return "SIP/2.0 200 OK\r\n\r\n"
		}
		return ""
	})

	cfg := peerConfig(peer)
	invite, err := domain.NewInvite(cfg)
	require.NoError(t, err)
	driver, err := adapters.NewUDPClient(invite, cfg.URITo, cfg.Logger)
	require.NoError(t, err)

	start := time.Now()
	result, err := domain.CallAndCancel(context.Background(), driver, invite, 300*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, result, "no challenge round happened")
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second, "the association must close, not hang")

	first := recvMsg(t, msgs)
	assert.True(t, strings.HasPrefix(first, "INVITE "))

	second := recvMsg(t, msgs)
	assert.True(t, strings.HasPrefix(second, "CANCEL "))
	assert.Contains(t, second, "CSeq: 1 CANCEL\r\n")
}

// the far end challenges the INVITE, we ACK, retry with credentials, get
// answered, and still hang up after the ring duration
func TestCallAuthChallengeFlow(t *testing.T) {
	peer, msgs := startPeer(t, func(msg string) string {
		switch {
		case strings.HasPrefix(msg, "INVITE") && !strings.Contains(msg, "Authorization:"):
			return "SIP/2.0 401 Unauthorized\r\n" +
				"WWW-Authenticate: Digest realm=\"example.com\",nonce=\"abc123\"\r\n\r\n"
		case strings.HasPrefix(msg, "INVITE"), strings.HasPrefix(msg, "CANCEL"):
			return "SIP/2.0 200 OK\r\n\r\n"
		}
		return ""
	})

	cfg := peerConfig(peer)
	cfg.Username = "alice"
	cfg.Password = "secret"

	invite, err := domain.NewInvite(cfg)
	require.NoError(t, err)
	driver, err := adapters.NewUDPClient(invite, cfg.URITo, cfg.Logger)
	require.NoError(t, err)

	result, err := domain.CallAndCancel(context.Background(), driver, invite, 300*time.Millisecond)
	require.NoError(t, err)

	require.NotNil(t, result)
	assert.Equal(t, 401, result.Status)
	assert.Equal(t, `Digest realm="example.com",nonce="abc123"`, result.Challenge)

	// wire order: INVITE, ACK for the 401, authenticated INVITE, CANCEL
	first := recvMsg(t, msgs)
	assert.True(t, strings.HasPrefix(first, "INVITE "))
	assert.NotContains(t, first, "Authorization:")

	ack := recvMsg(t, msgs)
	assert.True(t, strings.HasPrefix(ack, "ACK "))
	assert.Contains(t, ack, "CSeq: 1 INVITE\r\n")

	retry := recvMsg(t, msgs)
	assert.True(t, strings.HasPrefix(retry, "INVITE "))
	assert.Contains(t, retry, "CSeq: 2 INVITE\r\n")
	expected := adapters.DigestResponse("alice", "secret", "example.com", "abc123", "INVITE", cfg.URITo)
	assert.Contains(t, retry, `response="`+expected+`"`)

	hangup := recvMsg(t, msgs)
	assert.True(t, strings.HasPrefix(hangup, "CANCEL "))
	assert.Contains(t, hangup, "CSeq: 2 CANCEL\r\n")
}

// REGISTER never enqueues the hangup sentinel, the context bounds it
func TestRegisterRunsUntilDeadline(t *testing.T) {
	peer, msgs := startPeer(t, func(msg string) string {
		if strings.HasPrefix(msg, "REGISTER") {
			return "SIP/2.0 200 OK\r\n\r\n"
		}
		return ""
	})

	cfg := peerConfig(peer)
	cfg.URIContact = "sip:alice@127.0.0.1:5060"

	reg, err := domain.NewRegister(cfg)
	require.NoError(t, err)
	driver, err := adapters.NewUDPClient(reg, cfg.URITo, cfg.Logger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	result, err := driver.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, result)

	msg := recvMsg(t, msgs)
	assert.True(t, strings.HasPrefix(msg, "REGISTER "))
	assert.Contains(t, msg, "Contact: sip:alice@127.0.0.1:5060\r\n")
	assert.Contains(t, msg, "Expires: 60\r\n")
}

func TestMalformedResponseClosesAssociation(t *testing.T) {
	peer, _ := startPeer(t, func(msg string) string {
		return "BOGUS 200 OK\r\n\r\n"
	})

	cfg := peerConfig(peer)
	invite, err := domain.NewInvite(cfg)
	require.NoError(t, err)
	driver, err := adapters.NewUDPClient(invite, cfg.URITo, cfg.Logger)
	require.NoError(t, err)

	result, err := driver.Run(context.Background())

	var malformed *adapters.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Nil(t, result)
}
