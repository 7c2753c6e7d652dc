package dbuswire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

func TestWatchNameOwner_InitialQuery(t *testing.T) {
	loop, _ := newTestLoop(t)
	conn := newFakeConn()
	conn.object("/org/freedesktop/DBus").on("org.freedesktop.DBus.GetNameOwner", func(args []interface{}) ([]interface{}, error) {
		require.Equal(t, []interface{}{"com.nokia.SensorService"}, args)
		return []interface{}{":1.42"}, nil
	})

	owners := make(chan string, 4)
	ctl := el.NewAbortController()
	w, err := WatchNameOwner(loop, conn, "com.nokia.SensorService", ctl.Signal(), func(owner string) {
		owners <- owner
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	select {
	case owner := <-owners:
		require.Equal(t, ":1.42", owner)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial owner")
	}
}

func TestWatchNameOwner_NoOwner(t *testing.T) {
	loop, _ := newTestLoop(t)
	conn := newFakeConn()
	conn.object("/org/freedesktop/DBus").on("org.freedesktop.DBus.GetNameOwner", func(args []interface{}) ([]interface{}, error) {
		return nil, errNameHasNoOwnerStub
	})

	owners := make(chan string, 4)
	ctl := el.NewAbortController()
	w, err := WatchNameOwner(loop, conn, "com.nokia.SensorService", ctl.Signal(), func(owner string) {
		owners <- owner
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	select {
	case owner := <-owners:
		require.Equal(t, "", owner)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for no-owner notification")
	}
}
