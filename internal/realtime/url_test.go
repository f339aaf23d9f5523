package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketURL(t *testing.T) {
	tests := []struct {
		base string
		ch   Channel
		want string
	}{
		{"http://localhost:8000", ChannelBar, "ws://localhost:8000/ws?channel=bar&token=t%2Bk"},
		{"https://bar.example.com/", ChannelWaiter, "wss://bar.example.com/ws?channel=waiter&token=t%2Bk"},
		{"https://bar.example.com/app", ChannelAdmin, "wss://bar.example.com/app/ws?channel=admin&token=t%2Bk"},
		{"ws://10.0.0.2", ChannelCassa, "ws://10.0.0.2/ws?channel=cassa&token=t%2Bk"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := SocketURL(tt.base, tt.ch, "t+k")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSocketURL_Errors(t *testing.T) {
	_, err := SocketURL("http://x", Channel("kitchen"), "t")
	assert.Error(t, err)

	_, err = SocketURL("mailto:bar@example.com", ChannelBar, "t")
	assert.Error(t, err)
}

func TestChannel_Valid(t *testing.T) {
	for _, ch := range Channels {
		assert.True(t, ch.Valid(), ch)
	}
	assert.False(t, Channel("").Valid())
}
