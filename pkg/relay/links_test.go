package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Autuamn/dcqg-relay/pkg/config"
)

func TestRegistryLookups(t *testing.T) {
	r := NewRegistry([]config.LinkConfig{
		{QQGuildID: "qg1", QQChannelID: "qc1", DCGuildID: "dg1", DCChannelID: "dc1"},
		{QQGuildID: "qg1", QQChannelID: "qc2", DCGuildID: "dg1", DCChannelID: "dc2"},
	})

	link := r.ByQQChannel("qc1")
	require.NotNil(t, link)
	assert.Equal(t, "dc1", link.DCChannelID)

	assert.Same(t, link, r.ByDCChannel("dc1"))

	assert.Nil(t, r.ByQQChannel("unknown"))
	assert.Nil(t, r.ByDCChannel("unknown"))

	assert.Len(t, r.Links(), 2)
}

func TestRegistryPreprovisionedWebhook(t *testing.T) {
	r := NewRegistry([]config.LinkConfig{
		{QQGuildID: "qg", QQChannelID: "qc", DCGuildID: "dg", DCChannelID: "dc",
			WebhookID: "w1", WebhookToken: "t1"},
	})

	cred, ok := r.ByDCChannel("dc").Credential()
	require.True(t, ok)
	assert.Equal(t, Webhook{ID: "w1", Token: "t1"}, cred)
}

func TestLinkCredentialLifecycle(t *testing.T) {
	l := &Link{DCChannelID: "dc"}

	_, ok := l.Credential()
	assert.False(t, ok)

	l.SetCredential(Webhook{ID: "w", Token: "t"})
	cred, ok := l.Credential()
	require.True(t, ok)
	assert.Equal(t, "w", cred.ID)
}
