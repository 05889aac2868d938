package bridge

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbridge/server/internal/adapter/native"
)

func TestVendorFramesReachBus(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	require.NoError(t, b.HandleFrame([]byte(`{"channel":"vendor","payload":{"event":"ready"}}`)))

	got := <-b.Messages()
	assert.JSONEq(t, `{"event":"ready"}`, string(got))
}

func TestRuntimeGlobalsReported(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	assert.False(t, b.HasGlobal("YT"))
	require.NoError(t, b.HandleFrame([]byte(`{"channel":"runtime","globals":["YT","Vimeo"]}`)))
	assert.True(t, b.HasGlobal("YT"))
	assert.True(t, b.HasGlobal("Vimeo"))
	assert.False(t, b.HasGlobal("Hls"))
}

func TestHelloAdvertisesCapabilities(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	require.NoError(t, b.HandleFrame([]byte(`{"channel":"hello","can_play":["application/vnd.apple.mpegurl"]}`)))
	assert.True(t, b.CanPlayType("application/vnd.apple.mpegurl"))
	assert.False(t, b.CanPlayType("application/dash+xml"))
}

func TestMediaEventUpdatesMirror(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	require.NoError(t, b.HandleFrame([]byte(`{"channel":"media","event":{"kind":"timeupdate","current_time":12.5,"duration":300,"volume":0.6,"muted":true,"playback_rate":1.5}}`)))

	event := <-b.Events()
	assert.Equal(t, native.EventTimeUpdate, event.Kind)
	assert.Equal(t, 12.5, b.CurrentTime())
	assert.Equal(t, float64(300), b.Duration())
	assert.Equal(t, 0.6, b.Volume())
	assert.True(t, b.Muted())
	assert.Equal(t, 1.5, b.PlaybackRate())
}

func TestMediaErrorCarriesCodeAndMessage(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	require.NoError(t, b.HandleFrame([]byte(`{"channel":"media","event":{"kind":"error","code":3,"message":"decode failure"}}`)))

	event := <-b.Events()
	assert.Equal(t, native.EventError, event.Kind)
	assert.Equal(t, 3, event.Code)
	assert.Equal(t, "decode failure", event.Message)
}

func TestUnknownChannelRejected(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	assert.Error(t, b.HandleFrame([]byte(`{"channel":"telemetry"}`)))
	assert.Error(t, b.HandleFrame([]byte(`not json`)))
}

func TestDetachedSendIsSilent(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	// no embed attached: commands must not fail the caller
	assert.NoError(t, b.Post([]byte(`{"event":"listening"}`)))
	assert.NoError(t, b.Play())
}

func TestInjectScriptRequiresAttachedEmbed(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	// an injection with no page to land in must fail loudly, not report
	// success: the loader only records injections that were delivered
	assert.ErrorIs(t, b.InjectScript("https://player.vimeo.com/api/player.js"), ErrNotAttached)
}

// wsPair upgrades one websocket connection through a throwaway server and
// returns both ends.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server = <-connCh
	t.Cleanup(func() { server.Close() })

	return server, client
}

func readInject(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Channel string `json:"channel"`
		Inject  string `json:"inject"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "runtime", frame.Channel)

	return frame.Inject
}

func TestAttachReplaysInjectedScripts(t *testing.T) {
	b := NewBridge(slog.Default())
	defer b.Close()

	serverConn, clientConn := wsPair(t)
	require.NoError(t, b.Attach(serverConn))
	require.NoError(t, b.InjectScript("https://player.vimeo.com/api/player.js"))
	assert.Equal(t, "https://player.vimeo.com/api/player.js", readInject(t, clientConn))

	// the page goes away and takes its evaluated scripts with it
	b.Detach(serverConn)

	// a fresh page attaches: the script must be delivered again without
	// anyone calling InjectScript
	serverConn2, clientConn2 := wsPair(t)
	require.NoError(t, b.Attach(serverConn2))
	assert.Equal(t, "https://player.vimeo.com/api/player.js", readInject(t, clientConn2))
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	b := NewBridge(slog.Default())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Post([]byte(`{}`)), ErrClosed)

	_, open := <-b.Messages()
	assert.False(t, open)
}
